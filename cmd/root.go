package cmd

import (
	"fmt"

	"github.com/mycolog/mycolog/cmd/auth"
	"github.com/mycolog/mycolog/cmd/collection"
	"github.com/mycolog/mycolog/cmd/identify"
	"github.com/mycolog/mycolog/cmd/serve"
	"github.com/mycolog/mycolog/cmd/version"
	"github.com/mycolog/mycolog/internal/buildinfo"
	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "mycolog",
		Short:        "Mushroom collection log",
		SilenceUsage: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		rootCmd.PrintErrf("error setting up flags: %v\n", err)
	}

	versionCmd := version.Command(info)

	rootCmd.AddCommand(
		serve.Command(settings, info),
		collection.Command(settings),
		identify.Command(settings),
		auth.Command(settings),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return initialize(settings)
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return logger.Global().Flush()
	}

	return rootCmd
}

// initialize sets up logging once flags have been parsed.
func initialize(settings *conf.Settings) error {
	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}
	if settings.Logging.FileOutput != nil && settings.Logging.FileOutput.Enabled {
		settings.Logging.FileOutput.Path = settings.DataPath(settings.Logging.FileOutput.Path)
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)
	return nil
}

func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Main.DataDir, "datadir", viper.GetString("main.datadir"), "Directory holding the collection, images and logs")
	rootCmd.PersistentFlags().StringVar(&settings.Storage.Driver, "storage", viper.GetString("storage.driver"), "Storage driver: file, sqlite, mysql or memory")

	for key, flag := range map[string]string{
		"debug":          "debug",
		"main.datadir":   "datadir",
		"storage.driver": "storage",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}
	return nil
}
