package classify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// The only label with behavioral significance.
const FlaggedLabel = "cyberbullying"

var (
	ErrEmptyText     = errors.New("empty text can not be classified")
	ErrBadStatus     = errors.New("classifier returned non-success status")
	ErrMalformedBody = errors.New("malformed classifier response")
)

type Verdict struct {
	Label      string
	Confidence float64
	Flagged    bool
}

// Builds a verdict; flagLabel defaults to FlaggedLabel when empty.
func NewVerdict(label string, confidence float64, flagLabel string) Verdict {
	if flagLabel == "" {
		flagLabel = FlaggedLabel
	}
	return Verdict{
		Label:      label,
		Confidence: confidence,
		Flagged:    label == flagLabel,
	}
}

type PredictRequest struct {
	Text string `json:"text"`
}

// Response body of the predict endpoint. The label is either a bare string, or the backend's nested object form with a confidence score.
type PredictResponse struct {
	Label PredictLabel `json:"label"`
}

type PredictLabel struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence,omitempty"`
}

func (l *PredictLabel) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &l.Label)
	}
	type nested PredictLabel
	var n nested
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*l = PredictLabel(n)
	return nil
}

// Parses and validates a predict response body.
func ParsePredictResponse(body []byte) (*PredictResponse, error) {
	var resp PredictResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBody, err)
	}
	if resp.Label.Label == "" {
		return nil, fmt.Errorf("%w: missing label", ErrMalformedBody)
	}
	return &resp, nil
}
