package bridge

import (
	"context"
	"log/slog"

	"github.com/bluesky-social/veil/classify"
)

type Classifier interface {
	Classify(ctx context.Context, text string) (classify.Verdict, error)
}

// Dispatch side of the bridge: turns each request into exactly one response.
type Handler struct {
	Classifier Classifier
	Logger     *slog.Logger
}

func (h *Handler) Handle(ctx context.Context, req Request) Response {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch req.Type {
	case TypeClassify:
		v, err := h.Classifier.Classify(ctx, req.Text)
		if err != nil {
			bridgeRequests.WithLabelValues(req.Type, "error").Inc()
			logger.Warn("bridge classification failed", "id", req.ID, "err", err)
			return Response{ID: req.ID, Error: true}
		}
		bridgeRequests.WithLabelValues(req.Type, "ok").Inc()
		return Response{ID: req.ID, Label: &Label{Label: v.Label, Confidence: v.Confidence}}
	default:
		bridgeRequests.WithLabelValues("unknown", "error").Inc()
		logger.Warn("unhandled bridge request", "id", req.ID, "type", req.Type, "err", ErrUnknownType)
		return Response{ID: req.ID, Error: true}
	}
}
