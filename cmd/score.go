package main

import (
	"github.com/spf13/cobra"
)

var scoreForce bool

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute today's visibility and market snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return eng.Score(ctx, scoreForce)
	},
}

func init() {
	scoreCmd.Flags().BoolVar(&scoreForce, "force", false, "run even if the stage already completed today")
	rootCmd.AddCommand(scoreCmd)
}
