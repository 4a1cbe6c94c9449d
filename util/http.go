package util

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func UserAgent() string {
	return "veil/" + versioninfo.Short()
}

// Generates an HTTP client for talking to the classifier and storage backends. The returned client has the stdlib http.Client interface, but has Hashicorp retryablehttp logic and OpenTelemetry tracing internally.
//
// Requests are attempted exactly once: the pipeline treats a failed classification or store as final, so RetryMax is zero and non-2xx responses are passed through for the caller to inspect instead of being turned into "giving up" errors. Failures are logged through the given slog logger.
//
// A zero timeout means no timeout; a request that never resolves is left hanging, which is the pipeline's documented behavior.
func NewHTTPClient(logger *slog.Logger, timeout time.Duration) *http.Client {
	if logger == nil {
		logger = slog.Default()
	}
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = retryablehttp.LeveledLogger(logger.With("component", "http"))
	retryClient.HTTPClient.Transport = otelhttp.NewTransport(retryClient.HTTPClient.Transport)
	client := retryClient.StandardClient()
	client.Timeout = timeout
	return client
}
