package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/clinic-intel/internal/ledger"
	"github.com/sells-group/clinic-intel/internal/model"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent stage runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		stage, _ := cmd.Flags().GetString("stage")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, stage, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		if run == nil {
			return eris.Errorf("no run with ID %s", args[0])
		}

		fmt.Printf("ID:        %s\n", run.ID)
		fmt.Printf("Stage:     %s\n", run.Stage)
		fmt.Printf("Status:    %s\n", run.Status)
		fmt.Printf("Found:     %d\n", run.Counts.Found)
		fmt.Printf("New:       %d\n", run.Counts.New)
		fmt.Printf("Updated:   %d\n", run.Counts.Updated)
		fmt.Printf("Failed:    %d\n", run.Counts.Failed)
		fmt.Printf("Started:   %s\n", run.StartedAt.Format(time.RFC3339))
		if run.CompletedAt != nil {
			fmt.Printf("Completed: %s\n", run.CompletedAt.Format(time.RFC3339))
		}
		if run.Error != "" {
			fmt.Printf("Error:     %s\n", run.Error)
		}
		return nil
	},
}

var runsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Fail runs stuck in running past the stale threshold",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		swept, err := ledger.New(st).SweepStale(ctx, time.Duration(cfg.Pipeline.StaleAfterMins)*time.Minute)
		if err != nil {
			return eris.Wrap(err, "runs sweep")
		}
		fmt.Printf("Swept %d stale run(s).\n", swept)
		return nil
	},
}

func formatRunsList(w io.Writer, runs []model.Run) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTAGE\tSTATUS\tFOUND\tNEW\tUPDATED\tFAILED\tSTARTED")
	var total model.RunCounts
	for _, r := range runs {
		total.Add(r.Counts)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.Stage, r.Status,
			r.Counts.Found, r.Counts.New, r.Counts.Updated, r.Counts.Failed,
			r.StartedAt.Format("2006-01-02 15:04"))
	}
	if len(runs) > 1 {
		fmt.Fprintf(tw, "TOTAL\t\t\t%d\t%d\t%d\t%d\t\n",
			total.Found, total.New, total.Updated, total.Failed)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	runsListCmd.Flags().String("stage", "", "filter by stage name")
	runsListCmd.Flags().Int("limit", 20, "maximum runs to list")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsSweepCmd)
	rootCmd.AddCommand(runsCmd)
}
