package collection

import (
	"context"
	"fmt"

	"github.com/mycolog/mycolog/internal/app"
	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/view"
	"github.com/spf13/cobra"
)

func shareCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "share ID",
		Short: "Print the share text of a find",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Do(cmd.Context(), settings, func(ctx context.Context, a *app.App) error {
				rec, err := a.Store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, view.ShareMessage(&rec))
				if rec.Location != nil {
					fmt.Fprintf(out, "Directions: %s\n", view.DirectionsURL(*rec.Location))
				}
				return nil
			})
		},
	}
}
