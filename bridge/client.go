package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bluesky-social/veil/classify"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
)

// Observing side of the bridge. Implements the moderator's Classifier by round-tripping each text through a Server.
type Client struct {
	Logger    *slog.Logger
	FlagLabel string

	conn    *websocket.Conn
	writeMu sync.Mutex
	pending *xsync.MapOf[string, *classify.Pending]
	done    chan struct{}
	once    sync.Once
}

// Connects to a bridge server at addr (a ws:// or wss:// URL).
func Dial(ctx context.Context, addr string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bridge at %q: %w", addr, err)
	}
	c := &Client{
		Logger:  logger.With("component", "bridge", "addr", addr),
		conn:    conn,
		pending: xsync.NewMapOf[string, *classify.Pending](),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Sends a classification request and returns its pending verdict. The verdict resolves with ErrClosed if the connection drops first.
func (c *Client) Dispatch(ctx context.Context, text string) *classify.Pending {
	_, p := c.send(ctx, text)
	return p
}

func (c *Client) Classify(ctx context.Context, text string) (classify.Verdict, error) {
	id, p := c.send(ctx, text)
	v, err := p.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		// nobody is listening any more; a late response is dropped
		c.pending.Delete(id)
	}
	return v, err
}

func (c *Client) send(ctx context.Context, text string) (string, *classify.Pending) {
	id := uuid.NewString()
	p := classify.NewPending()
	c.pending.Store(id, p)

	select {
	case <-c.done:
		c.fail(id, ErrClosed)
		return id, p
	default:
	}

	c.writeMu.Lock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	}
	err := c.conn.WriteJSON(Request{ID: id, Type: TypeClassify, Text: text})
	_ = c.conn.SetWriteDeadline(time.Time{})
	c.writeMu.Unlock()
	if err != nil {
		c.fail(id, fmt.Errorf("sending bridge request: %w", err))
	}
	return id, p
}

func (c *Client) fail(id string, err error) {
	if p, ok := c.pending.LoadAndDelete(id); ok {
		p.Resolve(classify.Verdict{}, err)
	}
}

func (c *Client) readLoop() {
	defer func() {
		close(c.done)
		c.pending.Range(func(id string, _ *classify.Pending) bool {
			c.fail(id, ErrClosed)
			return true
		})
	}()

	for {
		_, buf, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.Logger.Debug("bridge connection read ended", "err", err)
			}
			return
		}

		var resp Response
		if err := json.Unmarshal(buf, &resp); err != nil {
			c.Logger.Warn("skipping malformed bridge response", "err", err)
			continue
		}
		p, ok := c.pending.LoadAndDelete(resp.ID)
		if !ok {
			droppedResponses.Inc()
			c.Logger.Debug("dropping bridge response with no waiting request", "id", resp.ID)
			continue
		}
		switch {
		case resp.Error:
			p.Resolve(classify.Verdict{}, ErrRemote)
		case resp.Label == nil || resp.Label.Label == "":
			p.Resolve(classify.Verdict{}, ErrNoLabel)
		default:
			p.Resolve(classify.NewVerdict(resp.Label.Label, resp.Label.Confidence, c.FlagLabel), nil)
		}
	}
}

// Closes the connection and fails every outstanding request. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
		<-c.done
	})
	return err
}
