package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	retryAllFailed bool
	retryStuck     bool
)

var retryCmd = &cobra.Command{
	Use:   "retry [bookmark-id]",
	Short: "Run enrichment again",
	Long: `Reset a bookmark to pending and run the whole enrichment pipeline again.

--all-failed retries every failed bookmark. --stuck retries bookmarks left
pending or processing by a run that exited early; do not use it while another
markly process is enriching.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !retryAllFailed && !retryStuck {
			return fmt.Errorf("pass a bookmark id, --all-failed or --stuck")
		}

		a, err := openApp(appOptions{pipeline: true})
		if err != nil {
			return err
		}
		defer a.close()

		queued := 0
		if len(args) == 1 {
			if err := a.service.Retry(args[0]); err != nil {
				return err
			}
			queued++
		}
		if retryAllFailed {
			n, err := a.service.RetryAllFailed()
			queued += n
			if err != nil {
				return err
			}
		}
		if retryStuck {
			n, err := a.service.RetryStuck()
			queued += n
			if err != nil {
				return err
			}
		}

		if queued == 0 {
			fmt.Println("Nothing to retry.")
			return nil
		}
		if err := a.waitForQueue(queued, "Retrying"); err != nil {
			return err
		}

		failed, err := a.store.IDsByStatus("failed")
		if err != nil {
			return err
		}
		fmt.Printf("Done. %d bookmark(s) still failed.\n", len(failed))
		return nil
	},
}

func init() {
	retryCmd.Flags().BoolVar(&retryAllFailed, "all-failed", false, "Retry every failed bookmark")
	retryCmd.Flags().BoolVar(&retryStuck, "stuck", false, "Retry bookmarks stuck in pending or processing")
	rootCmd.AddCommand(retryCmd)
}
