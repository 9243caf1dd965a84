package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aep/docsql/api"
	"github.com/aep/docsql/config"
	"github.com/aep/docsql/docstore"
	"github.com/aep/docsql/events"
	"github.com/aep/docsql/kv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/maypok86/otter"
)

const cacheCapacity = 100000

type server struct {
	db    *docstore.Store
	bus   events.Bus
	cache otter.Cache[string, api.Document]

	cacheMu    sync.RWMutex
	cacheEpoch uint64
}

func newServer(db *docstore.Store, bus events.Bus, cacheTTL time.Duration) (*server, error) {
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	cache, err := otter.MustBuilder[string, api.Document](cacheCapacity).
		WithTTL(cacheTTL).
		Build()
	if err != nil {
		return nil, err
	}
	return &server{
		db:    db,
		bus:   bus,
		cache: cache,
	}, nil
}

func (s *server) close() {
	s.cache.Close()
}

func (s *server) routes(e *echo.Echo) {
	e.Binder = &Binder{defaultBinder: &echo.DefaultBinder{}}
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("[server].Request:", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))
	e.Use(PrometheusMiddleware)
	e.Use(TracingMiddleware)

	e.POST("/v1/list", s.ListDocuments)
	e.POST("/v1/documents", s.CreateDocument)
	e.PUT("/v1/documents", s.PutDocument)
	e.GET("/v1/documents", s.GetDocument)
	e.PATCH("/v1/documents", s.PatchDocument)
	e.DELETE("/v1/documents", s.DeleteDocument)
}

// errorHandler renders every error as {"message": ...}.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := err.Error()

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, api.ErrorResponse{Message: msg})
	}
	if err != nil {
		slog.Warn("[server].errorHandler:", "err", err)
	}
}

func Main(cfg *config.Config) error {
	ctx := context.Background()

	if cfg.Telemetry.Endpoint != "" {
		shutdown, err := InitTracer(ctx, cfg.Telemetry.Endpoint)
		if err != nil {
			return err
		}
		defer shutdown(ctx)
	}

	k, err := kv.Open(cfg.KVOptions())
	if err != nil {
		return err
	}
	defer k.Close()

	db := docstore.New(k, docstore.Options{
		ReadOnly: cfg.Server.ReadOnly,
		MaxLimit: cfg.Server.MaxPageSize,
	})

	bus, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	s, err := newServer(db, bus, cfg.Server.CacheTTL)
	if err != nil {
		return err
	}
	defer s.close()

	if cfg.Server.StatsListen != "" {
		go s.statsd(cfg.Server.StatsListen)
	}

	e := echo.New()
	e.HideBanner = true
	s.routes(e)

	slog.Info("[server].Main: listening", "addr", cfg.Server.Listen, "kv", cfg.KV.Backend)
	return e.Start(cfg.Server.Listen)
}

func openBus(cfg *config.Config) (events.Bus, error) {
	url := cfg.Server.Nats
	if cfg.Server.EmbeddedNats != 0 {
		ns, err := events.NewEmbeddedNats(cfg.Server.EmbeddedNats)
		if err != nil {
			return nil, err
		}
		url = ns.ClientURL()
		slog.Info("[server].openBus: embedded nats running", "url", url)
	}
	if url == "" {
		return events.NewSolo(), nil
	}
	return events.NewNats(url)
}
