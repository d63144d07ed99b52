// Package signal is the gorilla/websocket-backed implementation of
// ports.PeerChannel and ports.MessageChannelHandler: the interactive peer
// message surface of spec.md §4.7, adapted from
// internal/infrastructure/signal/websocket_server.go's connection
// lifecycle (ping/pong, read deadlines, reconnect-closes-old-connection)
// onto a request/notification envelope that can carry room-initiated
// requests like "newConsumer" and block for the peer's acknowledgement.
package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"sfucore/internal/core/ports"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingInterval = 25 * time.Second
	pongTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
)

// envelope is the wire format for every frame exchanged over the channel:
// a peer-or-room-initiated request, its response, or a fire-and-forget
// notification. Mirrors the shape mediasoup-demo's protoo protocol uses,
// kept minimal since spec.md treats message bodies as opaque payloads.
type envelope struct {
	Type      string          `json:"type"`
	ID        int64           `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	OK        bool            `json:"ok,omitempty"`
	ErrReason string          `json:"errorReason,omitempty"`
}

// Dispatcher handles requests and notifications the remote peer initiates
// (the other direction from ports.PeerChannel). It is supplied by the
// connection handler wiring a Channel to a Room.
type Dispatcher interface {
	HandleRequest(ctx context.Context, method string, data json.RawMessage) (response interface{}, err error)
	HandleNotification(ctx context.Context, method string, data json.RawMessage)
}

// Channel implements ports.PeerChannel over one gorilla/websocket
// connection, correlating room-initiated requests to their responses by
// envelope ID.
type Channel struct {
	conn   *websocket.Conn
	logger *zap.SugaredLogger

	writeMu sync.Mutex
	nextID  int64

	pendingMu sync.Mutex
	pending   map[int64]chan envelope

	closeOnce sync.Once
	closed    chan struct{}
}

func NewChannel(conn *websocket.Conn, logger *zap.SugaredLogger) *Channel {
	return &Channel{
		conn:    conn,
		logger:  logger,
		pending: make(map[int64]chan envelope),
		closed:  make(chan struct{}),
	}
}

func (c *Channel) Notify(method string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	return c.write(envelope{Type: "notification", Method: method, Data: data})
}

func (c *Channel) Request(ctx context.Context, method string, payload interface{}) (interface{}, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request payload: %w", err)
	}

	id := atomic.AddInt64(&c.nextID, 1)
	respCh := make(chan envelope, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.write(envelope{Type: "request", ID: id, Method: method, Data: data}); err != nil {
		return nil, err
	}

	select {
	case resp := <-respCh:
		if !resp.OK {
			return nil, fmt.Errorf("peer rejected request %q: %s", method, resp.ErrReason)
		}
		var out interface{}
		if len(resp.Data) > 0 {
			if err := json.Unmarshal(resp.Data, &out); err != nil {
				return nil, fmt.Errorf("unmarshal response: %w", err)
			}
		}
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, fmt.Errorf("channel closed")
	}
}

func (c *Channel) write(env envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(env)
}

func (c *Channel) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.conn.Close()
}

// runReadLoop pumps incoming frames until the connection errs out,
// resolving pending Request calls by ID and handing peer-initiated
// requests/notifications to dispatcher. It owns the ping ticker, the same
// reconnect-safe liveness mechanism websocket_server.go uses.
func (c *Channel) runReadLoop(ctx context.Context, dispatcher Dispatcher) error {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	frames := make(chan envelope, 8)
	readErr := make(chan error, 1)
	go func() {
		for {
			var env envelope
			if err := c.conn.ReadJSON(&env); err != nil {
				readErr <- err
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
			frames <- env
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case env := <-frames:
			c.handleFrame(ctx, env, dispatcher)
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return err
			}
		case err := <-readErr:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Channel) handleFrame(ctx context.Context, env envelope, dispatcher Dispatcher) {
	switch env.Type {
	case "response":
		c.pendingMu.Lock()
		ch, ok := c.pending[env.ID]
		c.pendingMu.Unlock()
		if ok {
			ch <- env
		}
	case "request":
		resp, err := dispatcher.HandleRequest(ctx, env.Method, env.Data)
		if err != nil {
			_ = c.write(envelope{Type: "response", ID: env.ID, OK: false, ErrReason: err.Error()})
			return
		}
		data, merr := json.Marshal(resp)
		if merr != nil {
			_ = c.write(envelope{Type: "response", ID: env.ID, OK: false, ErrReason: merr.Error()})
			return
		}
		_ = c.write(envelope{Type: "response", ID: env.ID, OK: true, Data: data})
	case "notification":
		dispatcher.HandleNotification(ctx, env.Method, env.Data)
	default:
		c.logger.Warnw("unknown envelope type", "type", env.Type)
	}
}

var _ ports.PeerChannel = (*Channel)(nil)
