package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bluesky-social/veil/dom"
	"github.com/bluesky-social/veil/moderator"

	cli "github.com/urfave/cli/v2"
	"golang.org/x/net/html"
)

var replayCmd = &cli.Command{
	Name:      "replay",
	Usage:     "moderate a saved page while replaying a script of insertions into it",
	ArgsUsage: "<page.html>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "script",
			Usage: `JSON lines file of insertions ({"parent": "<css selector>", "html": "<fragment>"}), or "-" for stdin`,
		},
		&cli.StringSliceFlag{
			Name:  "reveal",
			Usage: "CSS selector of warned content units to reveal once moderation settles (repeatable)",
		},
		&cli.BoolFlag{
			Name:  "scan-existing",
			Usage: "also moderate content units already present in the page",
		},
		&cli.StringFlag{
			Name:    "bridge",
			Usage:   "classify through a bridge server (host or ws:// URL) instead of calling the engine directly",
			EnvVars: []string{"VEIL_BRIDGE_HOST"},
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: `where to write the moderated page ("-" for stdout)`,
			Value: "-",
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := cctx.Context
		logger := slog.Default()
		if cctx.Args().Len() != 1 {
			return fmt.Errorf("expected a single page argument")
		}

		shutdown, err := configOTEL("veil")
		if err != nil {
			return err
		}
		defer shutdown()

		p, err := loadProfile(cctx)
		if err != nil {
			return err
		}

		f, err := os.Open(cctx.Args().First())
		if err != nil {
			return err
		}
		doc, err := dom.Parse(f)
		f.Close()
		if err != nil {
			return err
		}

		var steps []replayStep
		if path := cctx.String("script"); path != "" {
			r := io.Reader(os.Stdin)
			if path != "-" {
				sf, err := os.Open(path)
				if err != nil {
					return err
				}
				defer sf.Close()
				r = sf
			}
			steps, err = readScript(r)
			if err != nil {
				return err
			}
		}

		var reveal []dom.Selector
		for _, raw := range cctx.StringSlice("reveal") {
			sel, err := dom.ParseSelector(raw)
			if err != nil {
				return err
			}
			reveal = append(reveal, sel)
		}

		classifier, closer, err := newClassifier(ctx, cctx, logger)
		if err != nil {
			return err
		}
		if closer != nil {
			defer closer.Close()
		}

		mod, err := moderator.New(moderator.Config{
			Profile:      p,
			Classifier:   classifier,
			Persister:    newForwarder(cctx, logger),
			Notifier:     newNotifier(cctx),
			ScanExisting: cctx.Bool("scan-existing"),
			Logger:       logger,
		})
		if err != nil {
			return err
		}

		out := io.Writer(os.Stdout)
		if path := cctx.String("output"); path != "-" {
			of, err := os.Create(path)
			if err != nil {
				return err
			}
			defer of.Close()
			out = of
		}
		return runReplay(ctx, mod, doc, steps, reveal, out)
	},
}

// One insertion: fragment is parsed and appended to the first element matching parent (the body when empty).
type replayStep struct {
	Parent string `json:"parent"`
	HTML   string `json:"html"`
}

// Reads JSON lines; blank lines and lines starting with '#' are skipped.
func readScript(r io.Reader) ([]replayStep, error) {
	var steps []replayStep
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		var step replayStep
		if err := json.Unmarshal([]byte(raw), &step); err != nil {
			return nil, fmt.Errorf("script line %d: %w", line, err)
		}
		steps = append(steps, step)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	return steps, nil
}

var errNoParent = errors.New("insertion parent not found")

// Applies one step as a single mutation batch.
func applyStep(doc *dom.Document, step replayStep) error {
	parentSel := step.Parent
	if parentSel == "" {
		parentSel = "body"
	}
	sel, err := dom.ParseSelector(parentSel)
	if err != nil {
		return err
	}
	var parent *html.Node
	doc.Read(func(root *html.Node) {
		parent = sel.Query(root)
	})
	if parent == nil {
		return fmt.Errorf("%w: %s", errNoParent, parentSel)
	}
	return doc.Update(func(tx *dom.Tx) error {
		_, err := tx.AppendHTML(parent, step.HTML)
		return err
	})
}

func runReplay(ctx context.Context, mod *moderator.Moderator, doc *dom.Document, steps []replayStep, reveal []dom.Selector, out io.Writer) error {
	logger := mod.Logger
	if err := mod.Start(ctx, doc); err != nil {
		return err
	}
	defer mod.Stop()

	for i, step := range steps {
		if err := applyStep(doc, step); err != nil {
			logger.Warn("skipping replay step", "step", i, "err", err)
		}
	}
	mod.Wait()

	for _, sel := range reveal {
		var roots []*html.Node
		doc.Read(func(root *html.Node) {
			roots = sel.QueryAll(root)
		})
		for _, r := range roots {
			if err := mod.Reveal(r); err != nil {
				logger.Warn("could not reveal content unit", "selector", sel.String(), "err", err)
			}
		}
	}

	return doc.Render(out)
}
