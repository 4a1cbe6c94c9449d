// Fake classifier and storage backend, speaking the same `/predict` and `/store` protocol as the real engine.
//
// The classifier is a keyword matcher: text containing any configured term is labeled "cyberbullying". Stored records are kept in memory, keyed by id with merge semantics. Failure modes (error statuses, malformed bodies, hanging requests) can be switched on to exercise the client side. Used by tests and by `veil fake-engine` for local development.
package fakeengine

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
)

const (
	FlaggedLabel = "cyberbullying"
	CleanLabel   = "not_cyberbullying"
)

type PredictRequest struct {
	Text string `json:"text"`
}

type StoreRequest struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	Text   string `json:"text"`
	Label  string `json:"label"`
}

type Engine struct {
	Logger *slog.Logger

	mu    sync.Mutex
	terms map[string]bool
	// exact text -> label overrides
	labels map[string]string
	// label returned for text that matches no term
	cleanLabel string
	// respond with {"label": "x"} instead of the nested {"label": {"label": "x", "confidence": c}}
	flat bool

	predictStatus int
	storeStatus   int
	malformed     bool
	hang          chan struct{}

	predictions []string
	stores      int
	records     map[string]StoreRequest
}

func New(terms ...string) *Engine {
	e := &Engine{
		Logger:     slog.Default(),
		terms:      make(map[string]bool),
		labels:     make(map[string]string),
		cleanLabel: CleanLabel,
		records:    make(map[string]StoreRequest),
	}
	for _, t := range terms {
		for _, tok := range Tokenize(t) {
			e.terms[tok] = true
		}
	}
	return e
}

func (e *Engine) SetLabel(text, label string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.labels[text] = label
}

func (e *Engine) SetCleanLabel(label string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cleanLabel = label
}

func (e *Engine) SetFlat(flat bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flat = flat
}

// Makes /predict answer with the given status; zero restores normal behavior.
func (e *Engine) FailPredict(status int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.predictStatus = status
}

func (e *Engine) FailStore(status int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.storeStatus = status
}

func (e *Engine) SetMalformed(malformed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.malformed = malformed
}

// Makes /predict block until the returned release function is called (or the client goes away).
func (e *Engine) Hang() (release func()) {
	ch := make(chan struct{})
	e.mu.Lock()
	e.hang = ch
	e.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			if e.hang == ch {
				e.hang = nil
			}
			e.mu.Unlock()
			close(ch)
		})
	}
}

// Texts received by /predict, in arrival order.
func (e *Engine) Predictions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.predictions))
	copy(out, e.predictions)
	return out
}

// Number of accepted /store calls.
func (e *Engine) Stores() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stores
}

func (e *Engine) Record(id string) (StoreRequest, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.records[id]
	return r, ok
}

// Label for text under the current configuration.
func (e *Engine) Label(text string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.label(text)
}

func (e *Engine) label(text string) string {
	if l, ok := e.labels[text]; ok {
		return l
	}
	for _, tok := range Tokenize(text) {
		if e.terms[tok] {
			return FlaggedLabel
		}
	}
	return e.cleanLabel
}

func (e *Engine) Echo() *echo.Echo {
	ec := echo.New()
	ec.HideBanner = true
	ec.HidePort = true
	ec.Use(slogecho.New(e.Logger))
	ec.Use(middleware.Recover())
	ec.POST("/predict", e.HandlePredict)
	ec.POST("/store", e.HandleStore)
	ec.GET("/_health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	return ec
}

func (e *Engine) HandlePredict(c echo.Context) error {
	var req PredictRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "Input text cannot be empty."})
	}

	e.mu.Lock()
	e.predictions = append(e.predictions, req.Text)
	status, malformed, hang, flat := e.predictStatus, e.malformed, e.hang, e.flat
	label := e.label(text)
	e.mu.Unlock()

	if hang != nil {
		select {
		case <-hang:
		case <-c.Request().Context().Done():
			return nil
		}
	}
	if status != 0 {
		return c.JSON(status, map[string]string{"detail": "prediction failed"})
	}
	if malformed {
		return c.String(http.StatusOK, "{not json")
	}
	if flat {
		return c.JSON(http.StatusOK, map[string]string{"label": label})
	}
	confidence := 0.97
	if label != FlaggedLabel {
		confidence = 0.88
	}
	return c.JSON(http.StatusOK, map[string]any{
		"label": map[string]any{"label": label, "confidence": confidence},
	})
}

func (e *Engine) HandleStore(c echo.Context) error {
	var req StoreRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.storeStatus != 0 {
		return c.JSON(e.storeStatus, map[string]string{"detail": "store failed"})
	}
	e.stores++
	e.records[req.ID] = req
	return c.JSON(http.StatusOK, map[string]string{"status": "stored"})
}
