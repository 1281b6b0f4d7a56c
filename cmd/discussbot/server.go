package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/e-dreyer/discussbot/dedupstore"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
)

// Server exposes health and metrics endpoints for the running bot.
type Server struct {
	echo  *echo.Echo
	httpd *http.Server
	store dedupstore.Store
}

// registers its collectors, so it must only be built once per process
var metricsMiddleware = echoprometheus.NewMiddleware("discussbot")

type HealthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Message string `json:"msg,omitempty"`
}

func NewServer(store dedupstore.Store, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:  e,
		store: store,
	}

	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(metricsMiddleware)

	e.GET("/_health", srv.HandleHealthCheck)
	e.GET("/metrics", echoprometheus.NewHandler())
	return srv
}

// Start listens on addr until Shutdown is called.
func (srv *Server) Start(addr string) error {
	srv.httpd = &http.Server{
		Handler:      srv.echo,
		Addr:         addr,
		WriteTimeout: 30 * time.Second,
		ReadTimeout:  30 * time.Second,
	}
	err := srv.httpd.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (srv *Server) Shutdown(ctx context.Context) error {
	if srv.httpd == nil {
		return nil
	}
	return srv.httpd.Shutdown(ctx)
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	if p, ok := srv.store.(dedupstore.Pinger); ok {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			slog.Error("health check: dedup store unreachable", "err", err)
			return c.JSON(http.StatusServiceUnavailable, HealthStatus{Status: "error", Version: versioninfo.Short(), Message: "dedup store unreachable"})
		}
	}
	return c.JSON(http.StatusOK, HealthStatus{Status: "ok", Version: versioninfo.Short()})
}
