package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/bluesky-social/veil/fakeengine"

	cli "github.com/urfave/cli/v2"
)

var fakeEngineCmd = &cli.Command{
	Name:  "fake-engine",
	Usage: "run a keyword-matching stand-in for the classifier and storage backend",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on",
			Value:   ":8080",
			EnvVars: []string{"VEIL_FAKE_ENGINE_BIND"},
		},
		&cli.StringSliceFlag{
			Name:  "term",
			Usage: "word that gets text labeled as flagged (repeatable)",
			Value: cli.NewStringSlice("worthless", "loser", "stupid", "idiot", "ugly"),
		},
		&cli.BoolFlag{
			Name:  "flat",
			Usage: `answer {"label": "x"} instead of the nested label form`,
		},
	},
	Action: func(cctx *cli.Context) error {
		logger := slog.Default()
		fe := fakeengine.New(cctx.StringSlice("term")...)
		fe.Logger = logger
		fe.SetFlat(cctx.Bool("flat"))

		e := fe.Echo()
		ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		go func() {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := e.Shutdown(sctx); err != nil {
				logger.Error("fake engine shutdown error", "err", err)
			}
		}()

		logger.Info("starting fake engine", "bind", cctx.String("bind"), "terms", cctx.StringSlice("term"))
		if err := e.Start(cctx.String("bind")); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}
