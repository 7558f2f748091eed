package sources

import (
	"context"
	"os/exec"

	"github.com/sarathavasarala/markly/internal/indexer"
)

// Source produces import candidates from somewhere outside markly.
type Source interface {
	// Name returns the source identifier (x, raindrop, github, file)
	Name() string
	// Candidates retrieves bookmarks from the source
	// When incremental=true, only items newer than the last sync are returned
	Candidates(ctx context.Context, incremental bool) ([]indexer.Candidate, error)
	// Available checks if the source can run here
	Available() bool
}

// syncState persists the newest timestamp seen per source between runs.
type syncState interface {
	GetMetadata(key string) (string, error)
	SetMetadata(key, value string) error
}

// runCommand executes an external CLI and returns its stdout.
// Tests replace it.
var runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

func commandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
