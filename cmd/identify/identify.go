package identify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mycolog/mycolog/internal/app"
	"github.com/mycolog/mycolog/internal/collection"
	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/identify"
	"github.com/mycolog/mycolog/internal/imagestore"
	"github.com/mycolog/mycolog/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Command creates the identify command, which sends a photo to the
// identification service and optionally saves the result as a find.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		save  bool
		notes string
	)
	cmd := &cobra.Command{
		Use:   "identify IMAGE",
		Short: "Identify a mushroom from a photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Do(cmd.Context(), settings, func(ctx context.Context, a *app.App) error {
				return run(ctx, cmd, a, args[0], save, notes)
			})
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Save the photo and the identification as a find")
	cmd.Flags().StringVar(&notes, "notes", "", "Notes stored with a saved find")
	cmd.Flags().StringVar(&settings.Identify.BaseURL, "service", viper.GetString("identify.baseurl"), "Base URL of the identification service")
	if err := viper.BindPFlag("identify.baseurl", cmd.Flags().Lookup("service")); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
	}
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, a *app.App, path string, save bool, notes string) error {
	client, err := a.RequireIdentify()
	if err != nil {
		return err
	}

	data, err := readImage(path)
	if err != nil {
		return err
	}

	res, err := client.Identify(ctx, bytes.NewReader(data), filepath.Base(path))
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), res)

	if !save {
		return nil
	}

	meta, err := a.Images.Save(ctx, bytes.NewReader(data))
	if err != nil {
		return err
	}
	var loc *collection.Location
	if a.Locator != nil {
		fix, err := a.Locator.CurrentLocation(ctx)
		if err != nil {
			logger.Global().Module("cli").Warn("saving without location", logger.Error(err))
		} else {
			loc = fix.Location()
		}
	}
	rec, err := a.Store.Append(ctx, res.RecordInput(meta.URI, loc, notes))
	if err != nil {
		a.DiscardImage(ctx, meta.URI)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nsaved as %s\n", rec.ID)
	return nil
}

func readImage(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("cli").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, imagestore.MaxSourceBytes+1))
	if err != nil {
		return nil, errors.New(err).Component("cli").Category(errors.CategoryFileIO).Build()
	}
	if len(data) > imagestore.MaxSourceBytes {
		return nil, errors.Validationf("image exceeds %d bytes", imagestore.MaxSourceBytes)
	}
	return data, nil
}

func printResult(w io.Writer, res *identify.Result) {
	fmt.Fprintf(w, "%s (%s)\n", res.Name, res.ScientificName)
	fmt.Fprintf(w, "confidence: %.0f%%\n", res.Confidence*100)
	fmt.Fprintf(w, "edibility:  %s\n", res.Edibility)
	if res.Description != "" {
		fmt.Fprintf(w, "\n%s\n", res.Description)
	}

	c := res.Characteristics
	for _, field := range []struct{ label, value string }{
		{"cap", c.Cap}, {"gills", c.Gills}, {"stem", c.Stem}, {"habitat", c.Habitat},
	} {
		if field.value != "" {
			fmt.Fprintf(w, "%-8s %s\n", field.label+":", field.value)
		}
	}

	if len(res.SimilarSpecies) > 0 {
		fmt.Fprintln(w, "\nsimilar species:")
		for _, s := range res.SimilarSpecies {
			fmt.Fprintf(w, "  %s (%s), %s\n", s.Name, s.ScientificName, s.Edibility)
		}
	}
}
