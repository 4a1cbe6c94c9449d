package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bluesky-social/veil/util"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

type Config struct {
	// base URL of the classifier backend; requests go to Host + "/predict"
	Host      string
	FlagLabel string
	// zero means no timeout
	Timeout time.Duration
	// max requests per second; zero disables limiting
	RateLimit float64
	// consecutive failures before short-circuiting; zero disables the breaker
	BreakerFailures uint32
	BreakerCooldown time.Duration
	Client          *http.Client
	Logger          *slog.Logger
}

type Dispatcher struct {
	Client    *http.Client
	Host      string
	FlagLabel string
	Limiter   *rate.Limiter
	Breaker   *gobreaker.CircuitBreaker
	Logger    *slog.Logger
}

func NewDispatcher(config Config) *Dispatcher {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "classify")

	client := config.Client
	if client == nil {
		client = util.NewHTTPClient(logger, config.Timeout)
	}

	d := &Dispatcher{
		Client:    client,
		Host:      strings.TrimSuffix(config.Host, "/"),
		FlagLabel: config.FlagLabel,
		Logger:    logger,
	}
	if d.FlagLabel == "" {
		d.FlagLabel = FlaggedLabel
	}
	if config.RateLimit > 0 {
		d.Limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	if config.BreakerFailures > 0 {
		cooldown := config.BreakerCooldown
		if cooldown <= 0 {
			cooldown = 30 * time.Second
		}
		threshold := config.BreakerFailures
		d.Breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "classifier",
			Timeout: cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("classifier circuit breaker state change", "from", from.String(), "to", to.String())
				breakerState.Set(float64(to))
			},
		})
	}
	return d
}

// Starts classification in the background. The returned Pending resolves exactly once.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) *Pending {
	p := NewPending()
	go func() {
		p.Resolve(d.Classify(ctx, text))
	}()
	return p
}

// Classifies text with a single request. Errors have already been logged when returned.
func (d *Dispatcher) Classify(ctx context.Context, text string) (Verdict, error) {
	if strings.TrimSpace(text) == "" {
		return Verdict{}, ErrEmptyText
	}

	if d.Limiter != nil {
		if err := d.Limiter.Wait(ctx); err != nil {
			d.Logger.Warn("classification rate limit wait failed", "err", err)
			return Verdict{}, fmt.Errorf("waiting for classifier rate limit: %w", err)
		}
	}

	var v Verdict
	var err error
	if d.Breaker != nil {
		var out any
		out, err = d.Breaker.Execute(func() (any, error) {
			return d.predict(ctx, text)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			classifyCount.WithLabelValues("breaker").Inc()
		}
		if err == nil {
			v = out.(Verdict)
		}
	} else {
		v, err = d.predict(ctx, text)
	}
	if err != nil {
		d.Logger.Warn("classification failed", "err", err, "textLen", len(text))
		return Verdict{}, err
	}

	d.Logger.Debug("classified text", "label", v.Label, "confidence", v.Confidence, "flagged", v.Flagged)
	if v.Flagged {
		verdictCount.WithLabelValues("flagged").Inc()
	} else {
		verdictCount.WithLabelValues("clean").Inc()
	}
	return v, nil
}

func (d *Dispatcher) predict(ctx context.Context, text string) (Verdict, error) {
	body, err := json.Marshal(PredictRequest{Text: text})
	if err != nil {
		return Verdict{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Host+"/predict", bytes.NewReader(body))
	if err != nil {
		return Verdict{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", util.UserAgent())

	start := time.Now()
	defer func() {
		classifyDuration.Observe(time.Since(start).Seconds())
	}()

	res, err := d.Client.Do(req)
	if err != nil {
		classifyCount.WithLabelValues("error").Inc()
		return Verdict{}, fmt.Errorf("classifier request failed: %w", err)
	}
	defer res.Body.Close()

	classifyCount.WithLabelValues(fmt.Sprint(res.StatusCode)).Inc()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return Verdict{}, fmt.Errorf("%w: statusCode=%d body=%q", ErrBadStatus, res.StatusCode, string(detail))
	}

	respBytes, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to read classifier response body: %w", err)
	}
	parsed, err := ParsePredictResponse(respBytes)
	if err != nil {
		return Verdict{}, err
	}
	return NewVerdict(parsed.Label.Label, parsed.Label.Confidence, d.FlagLabel), nil
}
