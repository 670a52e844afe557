package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	mw "github.com/mycolog/mycolog/internal/api/middleware"
	"github.com/mycolog/mycolog/internal/buildinfo"
	"github.com/mycolog/mycolog/internal/collection"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/geo"
	"github.com/mycolog/mycolog/internal/identify"
	"github.com/mycolog/mycolog/internal/imagestore"
	"github.com/mycolog/mycolog/internal/logger"
	"github.com/mycolog/mycolog/internal/observability"
	"github.com/mycolog/mycolog/internal/session"
)

// Server is the HTTP API. The collection store and session manager are
// required; routes backed by any other component answer 503 when it is absent.
type Server struct {
	echo   *echo.Echo
	config *Config
	log    logger.Logger

	store    collection.Store
	sessions *session.Manager
	images   *imagestore.Store
	identify *identify.Client
	locator  geo.Locator
	geocoder *geo.Geocoder
	sun      *geo.SunCalc
	metrics  *observability.Metrics
	build    buildinfo.BuildInfo

	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

func WithImages(st *imagestore.Store) ServerOption {
	return func(s *Server) { s.images = st }
}

func WithIdentifier(c *identify.Client) ServerOption {
	return func(s *Server) { s.identify = c }
}

func WithLocator(l geo.Locator) ServerOption {
	return func(s *Server) { s.locator = l }
}

func WithGeocoder(g *geo.Geocoder) ServerOption {
	return func(s *Server) { s.geocoder = g }
}

func WithSunCalc(sc *geo.SunCalc) ServerOption {
	return func(s *Server) { s.sun = sc }
}

// WithMetrics enables the request metrics middleware and, when the config
// allows it, the metrics route.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

func WithBuildInfo(b buildinfo.BuildInfo) ServerOption {
	return func(s *Server) { s.build = b }
}

// New creates the server and registers its routes.
func New(config *Config, store collection.Store, sessions *session.Manager, opts ...ServerOption) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if store == nil || sessions == nil {
		return nil, errors.Newf("api server needs a collection store and a session manager").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}

	s := &Server{
		config:    config,
		store:     store,
		sessions:  sessions,
		build:     (*buildinfo.Context)(nil),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Global().Module("api")
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = config.Debug
	s.echo.Logger = logger.NewEchoLoggerAdapter(s.log)
	s.echo.HTTPErrorHandler = s.handleError
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized",
		logger.String("listen", config.Listen),
		logger.Bool("metrics", s.metricsRouteEnabled()))
	return s, nil
}

func (s *Server) metricsRouteEnabled() bool {
	return s.config.MetricsEnabled && s.metrics != nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestID())
	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, func(c echo.Context) bool {
		return c.Path() == s.config.MetricsPath
	}))
	if s.metrics != nil {
		s.echo.Use(mw.NewMetrics(s.metrics.HTTP))
	}

	security := mw.DefaultSecurityConfig()
	security.AllowedOrigins = s.config.AllowedOrigins
	s.echo.Use(mw.NewCORS(security))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders(security))
	s.echo.Use(mw.NewSession(s.sessions))
}

func (s *Server) setupRoutes() {
	if s.metricsRouteEnabled() {
		s.echo.GET(s.config.MetricsPath, echo.WrapHandler(s.metrics.Handler()))
	}

	v1 := s.echo.Group("/api/v1")
	v1.GET("/health", s.healthCheck)

	v1.GET("/records", s.listRecords)
	v1.POST("/records", s.createRecord)
	v1.GET("/records/:id", s.getRecord)
	v1.DELETE("/records/:id", s.deleteRecord)
	v1.POST("/records/:id/favorite", s.toggleFavorite)
	v1.GET("/records/:id/share", s.shareRecord)
	v1.GET("/records/:id/sun", s.recordSunTimes)

	v1.GET("/map", s.mapView)

	v1.POST("/identify", s.identifyImage)
	v1.GET("/identify/:id", s.identifyDetails)

	v1.POST("/images", s.uploadImage)
	v1.GET("/images", s.listImages)
	v1.GET("/images/:key", s.serveImage)

	v1.GET("/location", s.currentLocation)
	v1.GET("/geocode", s.reverseGeocode)

	auth := v1.Group("/auth")
	auth.POST("/signin", s.signIn)
	auth.POST("/signup", s.signUp)
	auth.POST("/logout", s.logout)
	auth.GET("/me", s.me)
}

// ServeHTTP lets the server be used as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", logger.String("listen", s.config.Listen))
		if err := s.echo.Start(s.config.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- errors.New(err).Component("api").Category(errors.CategoryNetwork).Build()
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	return s.Shutdown()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	s.log.Info("shutting down HTTP server")
	if err := s.echo.Shutdown(ctx); err != nil {
		return errors.New(err).Component("api").Category(errors.CategoryNetwork).Build()
	}
	return nil
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        s.build.GetVersion(),
		"build_date":     s.build.GetBuildDate(),
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"revision":       s.store.Revision(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}
