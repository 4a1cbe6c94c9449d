package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	cli "github.com/urfave/cli/v2"
	"golang.org/x/text/unicode/norm"
)

var classifyCmd = &cli.Command{
	Name:      "classify",
	Usage:     "classify a single text and print the verdict as JSON",
	ArgsUsage: "<text>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "bridge",
			Usage:   "classify through a bridge server (host or ws:// URL) instead of calling the engine directly",
			EnvVars: []string{"VEIL_BRIDGE_HOST"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := cctx.Context
		logger := slog.Default()
		text := norm.NFC.String(strings.TrimSpace(strings.Join(cctx.Args().Slice(), " ")))
		if text == "" {
			return fmt.Errorf("need text to classify")
		}

		classifier, closer, err := newClassifier(ctx, cctx, logger)
		if err != nil {
			return err
		}
		if closer != nil {
			defer closer.Close()
		}

		v, err := classifier.Classify(ctx, text)
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(verdictOutput{
			Text:       text,
			Label:      v.Label,
			Confidence: v.Confidence,
			Flagged:    v.Flagged,
		})
	},
}

type verdictOutput struct {
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence,omitempty"`
	Flagged    bool    `json:"flagged"`
}

