package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/clinic-intel/internal/provider"
)

var collectForce bool

var collectCmd = &cobra.Command{
	Use:   "collect [source]",
	Short: "Run collection for one source, or every enabled source",
	Long:  "Fetches listings for the configured market's category keywords. Sources: google_places, yelp, registry, trends.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if len(args) == 0 {
			sources, err := listingSources()
			if err != nil {
				return err
			}
			for _, src := range sources {
				if err := eng.CollectSource(ctx, src, collectForce); err != nil {
					return err
				}
			}
			if signalSource() != nil {
				return eng.CollectSignals(ctx, collectForce)
			}
			return nil
		}

		name := args[0]
		if name == provider.SourceTrends {
			return eng.CollectSignals(ctx, collectForce)
		}

		sources, err := listingSources()
		if err != nil {
			return err
		}
		for _, src := range sources {
			if src.Name() == name {
				return eng.CollectSource(ctx, src, collectForce)
			}
		}
		return eris.Errorf("unknown or disabled source: %s", name)
	},
}

func init() {
	collectCmd.Flags().BoolVar(&collectForce, "force", false, "run even if the stage already completed today")
	rootCmd.AddCommand(collectCmd)
}
