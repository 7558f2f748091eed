package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sarathavasarala/markly/internal/db"
	"github.com/sarathavasarala/markly/internal/sources"
	"github.com/spf13/cobra"
)

var (
	importFile        string
	importSource      string
	importEnrich      bool
	importNano        bool
	importIncremental bool
	importJSON        bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import bookmarks from a browser export or another service",
	Long: `Import bookmarks in bulk. Existing URLs are skipped.

Sources:
  --file bookmarks.html   browser export (Netscape format); folder names become tags
  --source raindrop       Raindrop.io via the raindrop CLI
  --source github         starred repositories via the gh CLI
  --source x              X bookmarks via the bird CLI

Imported bookmarks are enriched in the background unless --enrich=false.
Ctrl+C cancels the enrichment still queued; 'markly jobs' shows past imports.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(appOptions{pipeline: importEnrich})
		if err != nil {
			return err
		}
		defer a.close()

		src, err := pickSource(a.store)
		if err != nil {
			return err
		}
		if !src.Available() {
			return fmt.Errorf("source %s is not available on this machine", src.Name())
		}

		candidates, err := src.Candidates(cmd.Context(), importIncremental)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", src.Name(), err)
		}
		if len(candidates) == 0 {
			fmt.Println("Nothing to import.")
			return nil
		}

		summary, err := a.service.ImportBatch(candidates, importNano)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		if !importJSON {
			fmt.Printf("Job %s: %d imported, %d skipped, %d invalid, %d queued for enrichment\n",
				summary.JobID, summary.Imported, summary.Skipped, summary.Invalid, summary.EnrichmentQueued)
		}

		if summary.EnrichmentQueued > 0 {
			if err := waitForJob(a, summary.JobID); err != nil {
				return err
			}
		}

		job, err := a.store.GetImportJob(summary.JobID)
		if err != nil {
			return err
		}
		if importJSON {
			return outputJSON(map[string]interface{}{"summary": summary, "job": job})
		}
		if summary.EnrichmentQueued > 0 {
			fmt.Printf("Enrichment %s: %d completed, %d failed\n", job.Status, job.EnrichCompleted, job.EnrichFailed)
		}
		return nil
	},
}

func pickSource(store *db.Store) (sources.Source, error) {
	switch {
	case importFile != "" && importSource != "":
		return nil, fmt.Errorf("use either --file or --source, not both")
	case importFile != "":
		return sources.NewFileSource(importFile, importEnrich), nil
	}
	switch importSource {
	case db.SourceRaindrop:
		return sources.NewRaindropSource(store, importEnrich), nil
	case db.SourceGitHub:
		return sources.NewGitHubSource(store, importEnrich), nil
	case db.SourceX, "twitter":
		return sources.NewTwitterSource(importEnrich), nil
	case "":
		return nil, fmt.Errorf("nothing to import: pass --file or --source")
	default:
		return nil, fmt.Errorf("unknown source %q (raindrop, github, x)", importSource)
	}
}

// waitForJob polls the import job until every queued item has finished,
// the job is canceled elsewhere, or the user interrupts.
func waitForJob(a *app, jobID string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		job, err := a.store.GetImportJob(jobID)
		if err != nil {
			return err
		}
		done := job.EnrichCompleted + job.EnrichFailed
		if !importJSON {
			printProgress(done, job.EnqueueEnrichCount, "Enriching")
		}
		if job.Status != db.JobProcessing || a.service.Pending() == 0 {
			if !importJSON {
				fmt.Println()
			}
			return nil
		}

		select {
		case <-ctx.Done():
			fmt.Println()
			n, err := a.service.CancelBatch(jobID)
			if err != nil {
				return err
			}
			return fmt.Errorf("interrupted: job %s canceled, %d item(s) not enriched (retry them with 'markly retry --all-failed')", jobID, n)
		case <-ticker.C:
		}
	}
}

func init() {
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "Browser bookmark export (HTML)")
	importCmd.Flags().StringVarP(&importSource, "source", "s", "", "Import from raindrop, github or x")
	importCmd.Flags().BoolVar(&importEnrich, "enrich", true, "Enrich imported bookmarks")
	importCmd.Flags().BoolVar(&importNano, "nano", false, "Use the cheaper model if one is configured")
	importCmd.Flags().BoolVarP(&importIncremental, "incremental", "i", false, "Only fetch items newer than the last import from this source")
	importCmd.Flags().BoolVarP(&importJSON, "json", "j", false, "Output as JSON")
	rootCmd.AddCommand(importCmd)
}
