package version

import (
	"fmt"

	"github.com/mycolog/mycolog/internal/buildinfo"
	"github.com/mycolog/mycolog/internal/conf"
	"github.com/spf13/cobra"
)

// Command prints build information.
func Command(info buildinfo.BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mycolog %s\n", info.GetVersion())
			fmt.Fprintf(out, "built:     %s\n", info.GetBuildDate())
			fmt.Fprintf(out, "system id: %s\n", info.GetSystemID())
			if path, err := conf.FindConfigFile(); err == nil {
				fmt.Fprintf(out, "config:    %s\n", path)
			}
		},
	}
}
