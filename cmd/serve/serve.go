package serve

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mycolog/mycolog/internal/api"
	"github.com/mycolog/mycolog/internal/app"
	"github.com/mycolog/mycolog/internal/buildinfo"
	"github.com/mycolog/mycolog/internal/collection"
	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/logger"
	"github.com/mycolog/mycolog/internal/mqtt"
	"github.com/mycolog/mycolog/internal/observability"
	"github.com/mycolog/mycolog/internal/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const (
	telemetryFlushTimeout = 2 * time.Second
	cacheReportInterval   = 30 * time.Second
)

// Command creates the serve command, which runs the HTTP API together with
// the metrics endpoint and the MQTT event publisher.
func Command(settings *conf.Settings, info buildinfo.BuildInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the collection over HTTP",
		Long:  "Start the HTTP API. Collection changes are published to MQTT when mqtt.enabled is set.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), settings, info)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Server.Listen, "listen", viper.GetString("server.listen"), "Listen address and port of the HTTP API")
	cmd.Flags().BoolVar(&settings.Metrics.Enabled, "metrics", viper.GetBool("metrics.enabled"), "Serve Prometheus metrics")
	cmd.Flags().BoolVar(&settings.MQTT.Enabled, "mqtt", viper.GetBool("mqtt.enabled"), "Publish collection changes to the MQTT broker")

	for key, flag := range map[string]string{
		"server.listen":   "listen",
		"metrics.enabled": "metrics",
		"mqtt.enabled":    "mqtt",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}
	return nil
}

// Run serves until ctx is cancelled or a component fails.
func Run(ctx context.Context, settings *conf.Settings, info buildinfo.BuildInfo) error {
	log := logger.Global().Module("serve")

	if err := telemetry.InitSentry(settings, info); err != nil {
		log.Warn("error telemetry disabled", logger.Error(err))
	}
	defer telemetry.Shutdown(telemetryFlushTimeout)

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	a, err := app.Open(ctx, settings, app.WithMetrics(m))
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("failed to close storage", logger.Error(err))
		}
	}()

	server, err := api.New(api.ConfigFromSettings(settings), a.Store, a.Sessions,
		api.WithLogger(logger.Global().Module("api")),
		api.WithImages(a.Images),
		api.WithIdentifier(a.Identify),
		api.WithLocator(a.Locator),
		api.WithGeocoder(a.Geocoder),
		api.WithSunCalc(a.Sun),
		api.WithMetrics(m),
		api.WithBuildInfo(info))
	if err != nil {
		return err
	}

	var publisher *mqtt.Publisher
	if settings.MQTT.Enabled {
		var disconnect func()
		publisher, disconnect, err = startPublisher(ctx, settings, m)
		if err != nil {
			return err
		}
		defer disconnect()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return collection.TrackStats(gctx, a.Store, m.Collection) })
	g.Go(func() error { return a.ReportCacheSizes(gctx, cacheReportInterval) })
	if publisher != nil {
		changes, cancel := a.Store.Subscribe()
		g.Go(func() error {
			defer cancel()
			return publisher.Run(gctx, changes)
		})
	}

	log.Info("mycolog started",
		logger.String("version", info.GetVersion()),
		logger.String("listen", settings.Server.Listen),
		logger.Bool("mqtt", settings.MQTT.Enabled),
		logger.Bool("telemetry", telemetry.Enabled()))

	return g.Wait()
}

func startPublisher(ctx context.Context, settings *conf.Settings, m *observability.Metrics) (*mqtt.Publisher, func(), error) {
	cfg := mqtt.ConfigFromSettings(settings)
	client, err := mqtt.NewClient(cfg, m.MQTT)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, nil, err
	}
	return mqtt.NewPublisher(client, cfg.Topic, m.MQTT), client.Disconnect, nil
}
