// Persistence forwarder: best-effort, fire-and-forget delivery of classified content units to the storage backend.
//
// Nothing here ever reports failure to the caller. Network errors and non-success statuses are logged and counted, and the record is dropped.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bluesky-social/veil/util"
)

type Record struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	Text   string `json:"text"`
	Label  string `json:"label"`
}

type Config struct {
	// base URL of the storage backend; requests go to Host + "/store"
	Host    string
	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
}

type Forwarder struct {
	Client *http.Client
	Host   string
	Logger *slog.Logger

	wg sync.WaitGroup
}

func NewForwarder(config Config) *Forwarder {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "persist")
	client := config.Client
	if client == nil {
		client = util.NewHTTPClient(logger, config.Timeout)
	}
	return &Forwarder{
		Client: client,
		Host:   strings.TrimSuffix(config.Host, "/"),
		Logger: logger,
	}
}

// Sends rec in the background. Cancelling ctx after the call does not abort the request.
func (f *Forwarder) Persist(ctx context.Context, rec Record) {
	ctx = context.WithoutCancel(ctx)
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		if err := f.Store(ctx, rec); err != nil {
			f.Logger.Warn("failed to store content unit", "err", err, "id", rec.ID, "author", rec.Author, "label", rec.Label)
		}
	}()
}

// Blocks until every background Persist call has finished.
func (f *Forwarder) Wait() {
	f.wg.Wait()
}

// Synchronous store; the error is returned instead of logged.
func (f *Forwarder) Store(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.Host+"/store", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", util.UserAgent())

	res, err := f.Client.Do(req)
	if err != nil {
		storeCount.WithLabelValues("error").Inc()
		return fmt.Errorf("store request failed: %w", err)
	}
	defer res.Body.Close()

	storeCount.WithLabelValues(fmt.Sprint(res.StatusCode)).Inc()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("store request failed statusCode=%d body=%q", res.StatusCode, string(detail))
	}
	// body is not consumed, but drain it so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
	return nil
}
