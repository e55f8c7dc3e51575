package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/clinic-intel/internal/model"
	"github.com/sells-group/clinic-intel/internal/region"
)

var (
	regionsShapefile string
	regionsCodeField string
)

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "Manage geographic region boundaries and assignment",
}

var regionsLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load region polygons from a shapefile into the store",
	Long:  "Parses a shapefile of region boundaries and persists each polygon so later assignment passes do not need the shapefile on disk.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if regionsShapefile == "" {
			return eris.New("--shapefile is required")
		}

		ix, err := region.LoadShapefile(regionsShapefile, regionsCodeField)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		regions := make([]model.Region, 0, len(ix.Regions()))
		for _, r := range ix.Regions() {
			wkb, err := r.WKB()
			if err != nil {
				return eris.Wrapf(err, "encode region %s", r.Code)
			}
			regions = append(regions, model.Region{Code: r.Code, Name: r.Name, Polygon: wkb})
		}
		if err := st.UpsertRegions(ctx, regions); err != nil {
			return err
		}

		zap.L().Info("regions loaded",
			zap.String("path", regionsShapefile),
			zap.Int("regions", len(regions)))
		fmt.Printf("Loaded %d region(s).\n", len(regions))
		return nil
	},
}

var regionsAssignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Assign clinics to regions by point-in-polygon lookup",
	Long:  "Stamps each active clinic with coordinates with the stored region containing it. Clinics without coordinates keep their postal-code fallback.",
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

		stored, err := st.Regions(ctx)
		if err != nil {
			return err
		}
		if len(stored) == 0 {
			return eris.New("no regions in the store; run `clinic-intel regions load --shapefile <path>` first")
		}

		decoded := make([]region.Region, 0, len(stored))
		for _, r := range stored {
			reg, err := region.FromWKB(r.Code, r.Name, r.Polygon)
			if err != nil {
				return eris.Wrapf(err, "decode region %s", r.Code)
			}
			decoded = append(decoded, reg)
		}
		ix := region.NewIndex(decoded)

		clinics, err := st.ActiveClinics(ctx)
		if err != nil {
			return err
		}

		assigned, skipped := 0, 0
		for _, c := range clinics {
			if c.Latitude == nil || c.Longitude == nil {
				skipped++
				continue
			}
			code, ok := ix.Locate(*c.Latitude, *c.Longitude)
			if !ok {
				skipped++
				continue
			}
			if code == c.RegionCode {
				continue
			}
			if err := st.UpdateClinicRegion(ctx, c.ID, code); err != nil {
				return err
			}
			assigned++
		}

		fmt.Printf("Assigned %d clinic(s), skipped %d without a region.\n", assigned, skipped)
		return nil
	},
}

func init() {
	regionsLoadCmd.Flags().StringVar(&regionsShapefile, "shapefile", "", "path to the region polygon shapefile")
	regionsLoadCmd.Flags().StringVar(&regionsCodeField, "code-field", "GEOID", "attribute field holding the region code")
	regionsCmd.AddCommand(regionsLoadCmd)
	regionsCmd.AddCommand(regionsAssignCmd)
	rootCmd.AddCommand(regionsCmd)
}
