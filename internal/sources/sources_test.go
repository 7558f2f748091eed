package sources

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sarathavasarala/markly/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exportFixture = `<!DOCTYPE NETSCAPE-Bookmark-file-1>
<META HTTP-EQUIV="Content-Type" CONTENT="text/html; charset=UTF-8">
<TITLE>Bookmarks</TITLE>
<H1>Bookmarks</H1>
<DL><p>
    <DT><A HREF="https://go.dev/" ADD_DATE="1700000000">The Go Programming Language</A>
    <DT><H3>Reading List</H3>
    <DL><p>
        <DT><A HREF="https://blog.example.com/post" TAGS="essays, Long Form">A <b>great</b> post</A>
        <DD>Recommended by a friend
        <DT><H3>Nested</H3>
        <DL><p>
            <DT><A HREF="https://nested.example.com/">Deep link</A>
        </DL><p>
        <DT><A HREF="javascript:void(0)">Bookmarklet</A>
    </DL><p>
    <DT><A HREF="https://after.example.com/">After folder</A>
</DL><p>
`

func TestParseNetscape(t *testing.T) {
	candidates, err := ParseNetscape(strings.NewReader(exportFixture))
	require.NoError(t, err)
	require.Len(t, candidates, 4)

	assert.Equal(t, "https://go.dev/", candidates[0].URL)
	assert.Equal(t, "The Go Programming Language", candidates[0].Title)
	assert.Empty(t, candidates[0].Tags)

	assert.Equal(t, "https://blog.example.com/post", candidates[1].URL)
	assert.Equal(t, "A great post", candidates[1].Title)
	assert.Equal(t, []string{"essays", "Long Form", "Reading List"}, candidates[1].Tags)
	assert.Equal(t, "Recommended by a friend", candidates[1].Notes)

	assert.Equal(t, []string{"Nested"}, candidates[2].Tags)
	assert.Empty(t, candidates[3].Tags)
	for _, c := range candidates {
		assert.Equal(t, db.SourceImport, c.Source)
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookmarks.html")
	require.NoError(t, os.WriteFile(path, []byte(exportFixture), 0644))

	src := NewFileSource(path, true)
	assert.True(t, src.Available())
	candidates, err := src.Candidates(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, candidates, 4)
	for _, c := range candidates {
		assert.True(t, c.Enrich)
	}

	_, err = NewFileSource(filepath.Join(t.TempDir(), "missing.html"), false).Candidates(context.Background(), false)
	assert.Error(t, err)
}

type memState map[string]string

func (m memState) GetMetadata(key string) (string, error) { return m[key], nil }
func (m memState) SetMetadata(key, value string) error    { m[key] = value; return nil }

func stubCommand(t *testing.T, fn func(name string, args ...string) ([]byte, error)) {
	t.Helper()
	orig := runCommand
	runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return fn(name, args...)
	}
	t.Cleanup(func() { runCommand = orig })
}

func TestRaindropIncremental(t *testing.T) {
	stubCommand(t, func(name string, args ...string) ([]byte, error) {
		assert.Equal(t, "raindrop", name)
		return []byte(`{"items":[
			{"_id":2,"title":"New","link":"https://new.example.com","note":"n","created":"2024-05-02T10:00:00Z","tags":["Go"]},
			{"_id":1,"title":"Old","link":"https://old.example.com","created":"2024-05-01T10:00:00Z"}
		]}`), nil
	})

	state := memState{raindropLastSyncKey: "2024-05-01T10:00:00Z"}
	src := NewRaindropSource(state, true)
	candidates, err := src.Candidates(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "https://new.example.com", candidates[0].URL)
	assert.Equal(t, []string{"Go"}, candidates[0].Tags)
	assert.Equal(t, "n", candidates[0].Notes)
	assert.Equal(t, db.SourceRaindrop, candidates[0].Source)
	assert.True(t, candidates[0].Enrich)
	assert.Equal(t, "2024-05-02T10:00:00Z", state[raindropLastSyncKey])

	all, err := src.Candidates(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRaindropFirstPageError(t *testing.T) {
	stubCommand(t, func(name string, args ...string) ([]byte, error) {
		return nil, errors.New("not logged in")
	})
	_, err := NewRaindropSource(nil, false).Candidates(context.Background(), false)
	assert.Error(t, err)
}

func TestGitHubStars(t *testing.T) {
	stubCommand(t, func(name string, args ...string) ([]byte, error) {
		assert.Equal(t, "gh", name)
		return []byte(`[{"starred_at":"2024-01-01T00:00:00Z","repo":{"full_name":"golang/go","html_url":"https://github.com/golang/go","description":"The Go language","topics":["language"]}}]`), nil
	})

	candidates, err := NewGitHubSource(memState{}, false).Candidates(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "https://github.com/golang/go", candidates[0].URL)
	assert.Equal(t, "golang/go", candidates[0].Title)
	assert.Equal(t, "The Go language", candidates[0].Notes)
	assert.Equal(t, []string{"language"}, candidates[0].Tags)
	assert.False(t, candidates[0].Enrich)
}

func TestParseMultipleArrays(t *testing.T) {
	stars, err := parseMultipleArrays([]byte(`[{"repo":{"html_url":"https://github.com/a/b"}}][{"repo":{"html_url":"https://github.com/c/d"}}]`))
	require.NoError(t, err)
	assert.Len(t, stars, 2)
}

func TestTwitterParse(t *testing.T) {
	long := strings.Repeat("word ", 40)
	out := []byte(`{"tweets":[
		{"id":"123","text":"short tweet","author":{"username":"gopher"}},
		{"id":"456","text":"` + long + `","author":{"username":"rob"}},
		{"id":"","text":"broken","author":{"username":"x"}}
	]}`)

	candidates, err := NewTwitterSource(true).parse(out)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "https://x.com/gopher/status/123", candidates[0].URL)
	assert.Equal(t, "short tweet", candidates[0].Title)
	assert.Equal(t, "short tweet", candidates[0].Description)
	assert.Equal(t, db.SourceX, candidates[0].Source)
	assert.True(t, strings.HasSuffix(candidates[1].Title, "..."))
	assert.Len(t, []rune(candidates[1].Title), 103)

	arr, err := NewTwitterSource(false).parse([]byte(`[{"id":"1","text":"t","author":{"username":"u"}}]`))
	require.NoError(t, err)
	assert.Len(t, arr, 1)

	_, err = NewTwitterSource(false).parse([]byte(`not json`))
	assert.Error(t, err)
}
