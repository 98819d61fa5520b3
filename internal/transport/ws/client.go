package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcoot/tagmatch/internal/model"
)

// eventBufferSize bounds events waiting for the consumer. A full buffer
// stalls reading, which eventually gets a slow client dropped by the server.
const eventBufferSize = 256

// Conn is the client end of a relay connection
type Conn struct {
	conn    *websocket.Conn
	welcome Welcome
	logger  *slog.Logger

	events chan model.Event
	done   chan struct{}
	stop   chan struct{}

	writeMu sync.Mutex

	mu      sync.Mutex
	reason  string
	closing bool
}

// Dial connects to a relay endpoint, presents identity and waits for approval.
// A denied connection returns an error wrapping model.ErrConnectionRejected.
func Dial(ctx context.Context, endpoint string, identity model.UserIdentity, logger *slog.Logger) (*Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	payload, err := json.Marshal(identity)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send identity: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) && closeErr.Code == websocket.ClosePolicyViolation {
			return nil, fmt.Errorf("%w: %s", model.ErrConnectionRejected, closeErr.Text)
		}
		return nil, fmt.Errorf("await welcome: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type != TypeWelcome {
		_ = conn.Close()
		return nil, fmt.Errorf("expected welcome message, got %q", env.Type)
	}
	var welcome Welcome
	if err := json.Unmarshal(env.Payload, &welcome); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("decode welcome: %w", err)
	}

	c := &Conn{
		conn:    conn,
		welcome: welcome,
		logger: logger.With(
			slog.String("component", "relay-client"),
			slog.Uint64("connection_id", uint64(welcome.ConnectionID)),
		),
		events: make(chan model.Event, eventBufferSize),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Welcome returns what the server sent on approval
func (c *Conn) Welcome() Welcome {
	return c.welcome
}

// Events delivers replicated events in order. Closed when the connection ends.
func (c *Conn) Events() <-chan model.Event {
	return c.events
}

// Done is closed when the connection ends
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Reason returns the close reason the server gave, empty if the client closed first
func (c *Conn) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Closed reports whether the client itself closed the connection
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

// SendContact reports a contact with another participant
func (c *Conn) SendContact(target model.ConnectionID) error {
	data, err := encode(TypeContact, Contact{TargetID: target})
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close leaves the match. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	close(c.stop)
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))

	select {
	case <-c.done:
	case <-time.After(time.Second):
	}
	return c.conn.Close()
}

func (c *Conn) readLoop() {
	defer func() {
		close(c.events)
		close(c.done)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				c.mu.Lock()
				c.reason = closeErr.Text
				c.mu.Unlock()
			}
			c.logger.Debug("relay connection ended", slog.String("error", err.Error()))
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type != TypeEvent {
			continue
		}
		var msg EventMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			c.logger.Warn("discarding malformed event", slog.String("error", err.Error()))
			continue
		}
		evt, err := DecodeEvent(msg)
		if err != nil {
			c.logger.Warn("discarding undecodable event", slog.String("error", err.Error()))
			continue
		}

		select {
		case c.events <- evt:
		case <-c.stop:
			return
		}
	}
}
