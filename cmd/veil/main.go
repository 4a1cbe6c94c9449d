package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bluesky-social/veil/bridge"
	"github.com/bluesky-social/veil/classify"
	"github.com/bluesky-social/veil/moderator"
	"github.com/bluesky-social/veil/notify"
	"github.com/bluesky-social/veil/persist"
	"github.com/bluesky-social/veil/profile"
	"github.com/bluesky-social/veil/util"
	"github.com/bluesky-social/veil/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "veil",
		Usage:   "real-time content moderation for live documents",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"VEIL_LOG_LEVEL", "GO_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "engine-host",
			Usage:   "method, hostname, and port of the classifier backend",
			Value:   "http://localhost:8080",
			EnvVars: []string{"VEIL_ENGINE_HOST"},
		},
		&cli.StringFlag{
			Name:    "store-host",
			Usage:   "method, hostname, and port of the storage backend (defaults to engine host)",
			EnvVars: []string{"VEIL_STORE_HOST"},
		},
		&cli.StringFlag{
			Name:    "flag-label",
			Usage:   "classifier label that gets content warned",
			Value:   classify.FlaggedLabel,
			EnvVars: []string{"VEIL_FLAG_LABEL"},
		},
		&cli.DurationFlag{
			Name:    "classify-timeout",
			Usage:   "timeout for classifier requests (zero waits forever)",
			EnvVars: []string{"VEIL_CLASSIFY_TIMEOUT"},
		},
		&cli.Float64Flag{
			Name:    "classify-rate-limit",
			Usage:   "max classifier requests per second (zero for no limit)",
			EnvVars: []string{"VEIL_CLASSIFY_RATE_LIMIT"},
		},
		&cli.UintFlag{
			Name:    "breaker-failures",
			Usage:   "consecutive classifier failures before requests are short-circuited (zero disables)",
			EnvVars: []string{"VEIL_BREAKER_FAILURES"},
		},
		&cli.StringFlag{
			Name:    "profile",
			Usage:   "path to a YAML site profile (selectors and warning text)",
			EnvVars: []string{"VEIL_PROFILE"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "full URL of slack webhook for warn notifications",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
	}

	app.Before = func(cctx *cli.Context) error {
		_, _, err := cliutil.SetupSlog(cliutil.LogOptions{LogLevel: cctx.String("log-level")})
		return err
	}

	app.Commands = []*cli.Command{
		replayCmd,
		serveCmd,
		classifyCmd,
		fakeEngineCmd,
	}

	return app.Run(args)
}

func loadProfile(cctx *cli.Context) (*profile.Profile, error) {
	if path := cctx.String("profile"); path != "" {
		return profile.Load(path)
	}
	return profile.Default(), nil
}

func newDispatcher(cctx *cli.Context, logger *slog.Logger) *classify.Dispatcher {
	return classify.NewDispatcher(classify.Config{
		Host:            cctx.String("engine-host"),
		FlagLabel:       cctx.String("flag-label"),
		Timeout:         cctx.Duration("classify-timeout"),
		RateLimit:       cctx.Float64("classify-rate-limit"),
		BreakerFailures: uint32(cctx.Uint("breaker-failures")),
		Logger:          logger,
	})
}

// Classifier for the moderator: direct HTTP to the engine, or through a bridge server if one is configured. The closer is nil for direct HTTP.
func newClassifier(ctx context.Context, cctx *cli.Context, logger *slog.Logger) (moderator.Classifier, io.Closer, error) {
	host := cctx.String("bridge")
	if host == "" {
		return newDispatcher(cctx, logger), nil, nil
	}
	addr, err := util.BridgeURL(host, "/bridge")
	if err != nil {
		return nil, nil, fmt.Errorf("invalid bridge host: %w", err)
	}
	c, err := bridge.Dial(ctx, addr, logger)
	if err != nil {
		return nil, nil, err
	}
	c.FlagLabel = cctx.String("flag-label")
	return c, c, nil
}

func newForwarder(cctx *cli.Context, logger *slog.Logger) *persist.Forwarder {
	host := cctx.String("store-host")
	if host == "" {
		host = cctx.String("engine-host")
	}
	return persist.NewForwarder(persist.Config{
		Host:   host,
		Logger: logger,
	})
}

func newNotifier(cctx *cli.Context) moderator.Notifier {
	if url := cctx.String("slack-webhook-url"); url != "" {
		return &notify.SlackNotifier{SlackWebhookURL: url}
	}
	return nil
}
