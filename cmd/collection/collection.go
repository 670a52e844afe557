// Package collection implements the collection subcommands: listing,
// adding, removing, favoriting, mapping, sharing and exporting finds.
package collection

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mycolog/mycolog/internal/collection"
	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/view"
	"github.com/spf13/cobra"
)

// Command creates the collection command and its subcommands.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "collection",
		Aliases: []string{"c"},
		Short:   "Manage saved mushroom finds",
	}

	cmd.AddCommand(
		listCommand(settings),
		addCommand(settings),
		removeCommand(settings),
		favoriteCommand(settings),
		mapCommand(settings),
		shareCommand(settings),
		exportCommand(settings),
	)
	return cmd
}

// filterFlags are the command-line form of view.FilterCriteria.
type filterFlags struct {
	edibility []string
	favorites bool
	search    string
	from      string
	to        string
	sort      string
	desc      bool
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.edibility, "edibility", nil, "Edibility classes to include: edible, poisonous, unknown")
	cmd.Flags().BoolVar(&f.favorites, "favorites", false, "Only favorite finds")
	cmd.Flags().StringVarP(&f.search, "search", "q", "", "Case-insensitive name or scientific name substring")
	cmd.Flags().StringVar(&f.from, "from", "", "Earliest save time, RFC 3339")
	cmd.Flags().StringVar(&f.to, "to", "", "Latest save time, RFC 3339")
	cmd.Flags().StringVar(&f.sort, "sort", string(view.SortSavedAt), "Sort key: savedAt, name or scientificName")
	cmd.Flags().BoolVar(&f.desc, "desc", false, "Sort descending")
}

func (f *filterFlags) criteria() (view.FilterCriteria, error) {
	crit := view.DefaultCriteria()

	if len(f.edibility) > 0 {
		crit.EdibilityClasses = crit.EdibilityClasses[:0]
		for _, v := range f.edibility {
			e, err := collection.ParseEdibility(v)
			if err != nil {
				return crit, err
			}
			crit.EdibilityClasses = append(crit.EdibilityClasses, e)
		}
	}
	crit.FavoritesOnly = f.favorites
	crit.SearchQuery = f.search

	var err error
	if crit.Start, err = parseTime("from", f.from); err != nil {
		return crit, err
	}
	if crit.End, err = parseTime("to", f.to); err != nil {
		return crit, err
	}

	if crit.SortKey, err = view.ParseSortKey(f.sort); err != nil {
		return crit, err
	}
	crit.SortAscending = !f.desc
	return crit, nil
}

func parseTime(name, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, errors.Validationf("--%s must be an RFC 3339 time, got %q", name, v)
	}
	return &t, nil
}

func printRecords(w io.Writer, records []collection.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSCIENTIFIC NAME\tEDIBILITY\tFAVORITE\tSAVED\tLOCATION")
	for i := range records {
		r := &records[i]
		loc := "-"
		if r.Location != nil {
			loc = fmt.Sprintf("%.5f,%.5f", r.Location.Latitude, r.Location.Longitude)
		}
		fav := ""
		if r.IsFavorite {
			fav = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Name, r.ScientificName, r.Edibility, fav,
			r.SavedAt.Local().Format(time.DateTime), loc)
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func summary(records []collection.Record) string {
	counts := make(map[collection.Edibility]int)
	for i := range records {
		counts[records[i].Edibility]++
	}
	parts := make([]string, 0, len(collection.AllEdibility))
	for _, e := range collection.AllEdibility {
		parts = append(parts, fmt.Sprintf("%s %d", e, counts[e]))
	}
	return fmt.Sprintf("%d finds (%s)", len(records), strings.Join(parts, ", "))
}
