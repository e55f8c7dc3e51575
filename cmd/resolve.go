package main

import (
	"github.com/spf13/cobra"
)

var resolveForce bool

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Reconcile collected records into canonical clinics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return eng.Resolve(ctx, resolveForce)
	},
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveForce, "force", false, "run even if the stage already completed today")
	rootCmd.AddCommand(resolveCmd)
}
