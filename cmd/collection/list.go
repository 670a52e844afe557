package collection

import (
	"context"
	"fmt"

	"github.com/mycolog/mycolog/internal/app"
	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/view"
	"github.com/spf13/cobra"
)

func listCommand(settings *conf.Settings) *cobra.Command {
	var (
		filters filterFlags
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved finds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			crit, err := filters.criteria()
			if err != nil {
				return err
			}
			return app.Do(cmd.Context(), settings, func(ctx context.Context, a *app.App) error {
				records, err := a.Store.ReadAll(ctx)
				if err != nil {
					return err
				}
				shown := view.Project(records, crit)
				if asJSON {
					return printJSON(cmd.OutOrStdout(), shown)
				}
				if err := printRecords(cmd.OutOrStdout(), shown); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), summary(shown))
				return nil
			})
		},
	}
	filters.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

// mapOutput is what the map command prints.
type mapOutput struct {
	Points []view.MapPoint `json:"points"`
	Region *view.Region    `json:"region,omitempty"`
}

func mapCommand(settings *conf.Settings) *cobra.Command {
	var (
		filters filterFlags
		fit     bool
	)
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Print the geotagged finds as map points",
		Long:  "Print the map points of the geotagged finds matching the filters as JSON. With --fit the region covering every point is included.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			crit, err := filters.criteria()
			if err != nil {
				return err
			}
			return app.Do(cmd.Context(), settings, func(ctx context.Context, a *app.App) error {
				records, err := a.Store.ReadAll(ctx)
				if err != nil {
					return err
				}
				out := mapOutput{Points: view.MapPoints(records, crit)}
				if fit {
					if region, ok := view.FitRegion(out.Points); ok {
						out.Region = &region
					}
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	filters.register(cmd)
	cmd.Flags().BoolVar(&fit, "fit", false, "Include the region fitted to the points")
	return cmd
}
