package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/bluesky-social/veil/bridge"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
	cli "github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "run the dispatch side of the bridge: classify requests arriving over websocket",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP and websocket",
			Value:   ":8081",
			EnvVars: []string{"VEIL_BIND"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger := slog.Default()

		shutdown, err := configOTEL("veil")
		if err != nil {
			return err
		}
		defer shutdown()

		e := newBridgeEcho(bridge.NewServer(newDispatcher(cctx, logger), logger), logger)
		httpd := &http.Server{
			Addr:              cctx.String("bind"),
			Handler:           e,
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eg, ctx := errgroup.WithContext(ctx)
		eg.Go(func() error {
			logger.Info("starting server", "bind", httpd.Addr)
			if err := httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server shutting down unexpectedly: %w", err)
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			logger.Info("shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpd.Shutdown(sctx)
		})
		if err := eg.Wait(); err != nil {
			return err
		}
		logger.Info("graceful shutdown complete")
		return nil
	},
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

func newBridgeEcho(srv *bridge.Server, logger *slog.Logger) *echo.Echo {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(echoprometheus.NewMiddleware("veil"))

	e.GET("/_health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "veil"})
	})
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/bridge", srv.HandleWebsocket)
	return e
}
