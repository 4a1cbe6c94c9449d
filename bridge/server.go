package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

type Server struct {
	Handler *Handler
	Logger  *slog.Logger

	upgrader websocket.Upgrader
}

func NewServer(c Classifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "bridge")
	return &Server{
		Handler: &Handler{Classifier: c, Logger: logger},
		Logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Echo handler that upgrades to a websocket and answers requests until the peer goes away. Requests are handled concurrently; responses are written in completion order.
func (s *Server) HandleWebsocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	bridgeConnections.Inc()
	defer bridgeConnections.Dec()
	logger := s.Logger.With("remote", c.RealIP())
	logger.Info("bridge websocket connected")

	ctx, cancel := context.WithCancel(c.Request().Context())

	var (
		wg      sync.WaitGroup
		writeMu sync.Mutex
	)
	// outstanding handlers must finish (or give up) before the connection is closed
	defer wg.Wait()
	defer cancel()

	for {
		_, buf, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info("bridge websocket disconnected")
			} else {
				logger.Info("bridge websocket read failed", "err", err)
			}
			return nil
		}

		var req Request
		if err := json.Unmarshal(buf, &req); err != nil {
			logger.Warn("skipping malformed bridge request", "err", err)
			continue
		}
		if req.ID == "" {
			logger.Warn("skipping bridge request without id", "type", req.Type)
			continue
		}

		wg.Add(1)
		go func(req Request) {
			defer wg.Done()
			resp := s.Handler.Handle(ctx, req)
			writeMu.Lock()
			defer writeMu.Unlock()
			if err := ws.WriteJSON(resp); err != nil {
				logger.Info("bridge websocket write error", "id", req.ID, "err", err)
			}
		}(req)
	}
}
