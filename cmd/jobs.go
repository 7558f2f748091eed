package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	jobsLimit   int
	jobsJSON    bool
	jobsCascade bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List import jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		jobs, err := a.store.ListImportJobs(jobsLimit)
		if err != nil {
			return err
		}
		if jobsJSON {
			return outputJSON(jobs)
		}
		if len(jobs) == 0 {
			fmt.Println("No import jobs.")
			return nil
		}
		for _, j := range jobs {
			fmt.Printf("%s  %-10s  %s  total %d, imported %d, skipped %d, enriched %d/%d (%d failed)\n",
				j.ID, j.Status, j.CreatedAt.Local().Format("2006-01-02 15:04"),
				j.Total, j.ImportedCount, j.SkippedCount,
				j.EnrichCompleted, j.EnqueueEnrichCount, j.EnrichFailed)
		}
		return nil
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show an import job and its items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		job, err := a.store.GetImportJob(args[0])
		if err != nil {
			return err
		}
		items, err := a.store.ListImportItems(job.ID)
		if err != nil {
			return err
		}
		if jobsJSON {
			return outputJSON(map[string]interface{}{"job": job, "items": items})
		}

		fmt.Printf("Job %s (%s)\n", job.ID, job.Status)
		fmt.Printf("  Total %d, imported %d, skipped %d\n", job.Total, job.ImportedCount, job.SkippedCount)
		fmt.Printf("  Enrichment: %d completed, %d failed of %d\n", job.EnrichCompleted, job.EnrichFailed, job.EnqueueEnrichCount)
		if job.CurrentItemID != nil {
			fmt.Printf("  Current item: %s\n", *job.CurrentItemID)
		}
		fmt.Println()
		for _, item := range items {
			fmt.Printf("  %s  %-10s  %s\n", item.ID, item.Status, item.URL)
			if item.Error != nil {
				fmt.Printf("      %s\n", truncate(*item.Error, 120))
			}
		}
		return nil
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel the items of an import job that have not started",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		n, err := a.service.CancelBatch(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Canceled job %s (%d item(s) will not be enriched)\n", args[0], n)
		return nil
	},
}

var jobsSkipCmd = &cobra.Command{
	Use:   "skip <job-id> <item-id>",
	Short: "Skip one item of an import job",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		ok, err := a.service.SkipItem(args[0], args[1])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Item already finished; nothing to skip.")
			return nil
		}
		fmt.Printf("Skipped item %s\n", args[1])
		return nil
	},
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete an import job",
	Long:  "Delete an import job and its item records. With --cascade the bookmarks it created are deleted too.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.service.DeleteImportJob(args[0], jobsCascade); err != nil {
			return err
		}
		fmt.Printf("Deleted job %s\n", args[0])
		return nil
	},
}

func init() {
	jobsCmd.PersistentFlags().BoolVarP(&jobsJSON, "json", "j", false, "Output as JSON")
	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "l", 20, "Number of jobs to list")
	jobsDeleteCmd.Flags().BoolVar(&jobsCascade, "cascade", false, "Also delete the bookmarks the job created")
	jobsCmd.AddCommand(jobsShowCmd, jobsCancelCmd, jobsSkipCmd, jobsDeleteCmd)
	rootCmd.AddCommand(jobsCmd)
}
