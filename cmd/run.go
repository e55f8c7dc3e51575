package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runForce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one full collect -> resolve -> score pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return eng.Run(ctx, runForce)
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the full pass daily at the configured time",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return eng.Schedule(ctx)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runForce, "force", false, "rerun stages that already completed today")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scheduleCmd)
}
