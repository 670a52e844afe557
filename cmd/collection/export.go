package collection

import (
	"context"
	"io"
	"time"

	"github.com/mycolog/mycolog/internal/app"
	"github.com/mycolog/mycolog/internal/collection"
	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// exportRecord is the YAML form of a record. JSON export uses the record's
// own encoding.
type exportRecord struct {
	ID             string               `yaml:"id"`
	Name           string               `yaml:"name"`
	ScientificName string               `yaml:"scientificName"`
	Edibility      collection.Edibility `yaml:"edibility"`
	ImageURI       string               `yaml:"imageUri"`
	Location       *collection.Location `yaml:"location,omitempty"`
	Notes          string               `yaml:"notes,omitempty"`
	Confidence     float64              `yaml:"confidence,omitempty"`
	Description    string               `yaml:"description,omitempty"`
	SavedAt        time.Time            `yaml:"savedAt"`
	IsFavorite     bool                 `yaml:"isFavorite"`
}

func toExport(records []collection.Record) []exportRecord {
	out := make([]exportRecord, len(records))
	for i := range records {
		r := &records[i]
		out[i] = exportRecord{
			ID:             r.ID,
			Name:           r.Name,
			ScientificName: r.ScientificName,
			Edibility:      r.Edibility,
			ImageURI:       r.ImageURI,
			Location:       r.Location,
			Notes:          r.Notes,
			Confidence:     r.Confidence,
			Description:    r.Description,
			SavedAt:        r.SavedAt,
			IsFavorite:     r.IsFavorite,
		}
	}
	return out
}

func exportCommand(settings *conf.Settings) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the whole collection to stdout",
		Long:  "Write every find of the signed-in user, in save order, as JSON or YAML.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "yaml" {
				return errors.Validationf("--format must be json or yaml, got %q", format)
			}
			return app.Do(cmd.Context(), settings, func(ctx context.Context, a *app.App) error {
				records, err := a.Store.ReadAll(ctx)
				if err != nil {
					return err
				}
				return export(cmd.OutOrStdout(), records, format)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")
	return cmd
}

func export(w io.Writer, records []collection.Record, format string) error {
	if format == "json" {
		return printJSON(w, records)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(toExport(records)); err != nil {
		return errors.New(err).Component("cli").Category(errors.CategoryFileIO).Build()
	}
	return enc.Close()
}
