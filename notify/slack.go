// Operator notifications for warned content units.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/bluesky-social/veil/classify"
	"github.com/bluesky-social/veil/extract"
)

type SlackNotifier struct {
	SlackWebhookURL string
	// defaults to http.DefaultClient
	Client *http.Client
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

func (n *SlackNotifier) NotifyWarned(ctx context.Context, unit extract.ContentUnit, v classify.Verdict) error {
	if n.SlackWebhookURL == "" {
		return nil
	}
	return n.sendSlackMsg(ctx, slackBody(unit, v))
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (n *SlackNotifier) sendSlackMsg(ctx context.Context, msg string) error {
	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if resp.StatusCode != 200 || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}

func slackBody(unit extract.ContentUnit, v classify.Verdict) string {
	msg := "⚠️ Veil Warned Content ⚠️\n"
	msg += fmt.Sprintf("`%s` / `%s`\n", unit.Author, unit.ID)
	msg += fmt.Sprintf("Label: `%s` (%.2f)\n", v.Label, v.Confidence)
	text := unit.Text
	if r := []rune(text); len(r) > 280 {
		text = string(r[:280]) + "…"
	}
	msg += "> " + strings.ReplaceAll(text, "\n", " ") + "\n"
	return msg
}
