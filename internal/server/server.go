package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/text/language"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/logger"
	"github.com/mohammad-safakhou/researcher/internal/research"
	"github.com/mohammad-safakhou/researcher/internal/runtime"
	"github.com/mohammad-safakhou/researcher/internal/store"
)

const shutdownTimeout = 10 * time.Second

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Config   *config.Config
	Store    *store.Store
	Research *research.Service
	// Gatherer backs /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer
	Log      *logger.Logger
}

// New wires routes, middleware and the error handler.
func New(d Deps) (*echo.Echo, error) {
	secret, err := runtime.LoadJWTSecret(d.Config)
	if err != nil {
		return nil, err
	}
	log := d.Log
	if log == nil {
		log = logger.NewNop()
	}
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = errorHandler(log.With("component", "http"), fallbackLocale(d.Config.General.Locale))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, echo.HeaderAcceptEncoding, "Accept-Language", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error {
		if err := d.Store.Ping(c.Request().Context()); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable").SetInternal(err)
		}
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	verifier := runtime.NewVerifier(secret, d.Store)
	requireAuth := runtime.EchoAuthMiddleware(verifier)

	api := e.Group("/api/v1")
	auth := &AuthHandler{
		Store:        d.Store,
		Secret:       secret,
		TTL:          d.Config.Server.TokenTTL,
		Verifier:     verifier,
		SecureCookie: d.Config.General.Env == "prod",
	}
	auth.Register(api.Group("/auth"))

	keys := &KeysHandler{Store: d.Store}
	keys.Register(api.Group("/user/keys", requireAuth))

	rh := &ResearchHandler{Service: d.Research}
	rh.Register(api.Group("/research", requireAuth))

	return e, nil
}

// Run serves e on addr until ctx is cancelled, then drains in-flight requests.
func Run(ctx context.Context, e *echo.Echo, addr string, log *logger.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr)
		errCh <- e.Start(addr)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func fallbackLocale(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil {
		return language.English
	}
	return tag
}
