package collection

import (
	"context"
	"fmt"
	"os"

	"github.com/mycolog/mycolog/internal/app"
	"github.com/mycolog/mycolog/internal/collection"
	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/logger"
	"github.com/spf13/cobra"
)

type addFlags struct {
	name       string
	scientific string
	edibility  string
	image      string
	lat        float64
	lon        float64
	notes      string
}

func addCommand(settings *conf.Settings) *cobra.Command {
	var f addFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Save a find",
		Long: `Save a find. The photo is re-encoded and stored in the image store.
Without --lat and --lon the configured position (geo.latitude, geo.longitude) is used when set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			edibility, err := collection.ParseEdibility(f.edibility)
			if err != nil {
				return err
			}
			return app.Do(cmd.Context(), settings, func(ctx context.Context, a *app.App) error {
				in := collection.NewRecordInput{
					Name:           f.name,
					ScientificName: f.scientific,
					Edibility:      edibility,
					Notes:          f.notes,
				}

				switch latSet, lonSet := cmd.Flags().Changed("lat"), cmd.Flags().Changed("lon"); {
				case latSet != lonSet:
					return errors.ValidationError("--lat and --lon must be given together")
				case latSet:
					in.Location = &collection.Location{Latitude: f.lat, Longitude: f.lon}
				case a.Locator != nil:
					fix, err := a.Locator.CurrentLocation(ctx)
					if err != nil {
						logger.Global().Module("cli").Warn("saving without location", logger.Error(err))
					} else {
						in.Location = fix.Location()
					}
				}
				// validated against the source path so that nothing is stored
				// for a find that would be rejected
				in.ImageURI = f.image
				if err := in.Validate(); err != nil {
					return err
				}

				uri, err := saveImage(ctx, a, f.image)
				if err != nil {
					return err
				}
				in.ImageURI = uri

				rec, err := a.Store.Append(ctx, in)
				if err != nil {
					a.DiscardImage(ctx, uri)
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s) as %s\n", rec.Name, rec.ScientificName, rec.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&f.name, "name", "", "Common name")
	cmd.Flags().StringVar(&f.scientific, "scientific", "", "Scientific name")
	cmd.Flags().StringVar(&f.edibility, "edibility", "", "edible, poisonous or unknown")
	cmd.Flags().StringVar(&f.image, "image", "", "Path to the photo (JPEG, PNG or GIF)")
	cmd.Flags().Float64Var(&f.lat, "lat", 0, "Latitude of the find")
	cmd.Flags().Float64Var(&f.lon, "lon", 0, "Longitude of the find")
	cmd.Flags().StringVar(&f.notes, "notes", "", "Free-form notes")
	for _, name := range []string{"name", "scientific", "edibility", "image"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

// saveImage stores the photo at path and returns its URI.
func saveImage(ctx context.Context, a *app.App, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", errors.New(err).
			Component("cli").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer file.Close()

	meta, err := a.Images.Save(ctx, file)
	if err != nil {
		return "", err
	}
	return meta.URI, nil
}

func removeCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:     "remove ID",
		Aliases: []string{"rm"},
		Short:   "Remove a find",
		Long:    "Remove a find from the collection. Its photo stays in the image store.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Do(cmd.Context(), settings, func(ctx context.Context, a *app.App) error {
				if err := a.Store.Remove(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				return nil
			})
		},
	}
}

func favoriteCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:     "favorite ID",
		Aliases: []string{"fav"},
		Short:   "Toggle the favorite flag of a find",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Do(cmd.Context(), settings, func(ctx context.Context, a *app.App) error {
				fav, err := a.Store.ToggleFavorite(ctx, args[0])
				if err != nil {
					return err
				}
				state := "no longer a favorite"
				if fav {
					state = "marked as favorite"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], state)
				return nil
			})
		},
	}
}
