package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/mcoot/tagmatch/internal/model"
	"github.com/mcoot/tagmatch/internal/services/match"
)

// RoutePattern is where the server expects to be mounted on a gorilla/mux router
const RoutePattern = "/relay/{allocationID}"

// ErrAlreadyAttached is returned when an allocation already routes to a session
var ErrAlreadyAttached = errors.New("allocation already attached")

// Config holds relay transport settings
type Config struct {
	// Time allowed for the client to send its identity payload
	HandshakeTimeout time.Duration
	// Time allowed to write a message to the peer
	WriteWait time.Duration
	// Time between keepalive pings
	PingPeriod time.Duration
	// Outgoing messages buffered per client before it is dropped
	SendBufferSize int
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteWait:        10 * time.Second,
		PingPeriod:       30 * time.Second,
		SendBufferSize:   256,
	}
}

// Server accepts relay connections and routes them into hosted matches by allocation id
type Server struct {
	config   Config
	upgrader websocket.Upgrader
	logger   *slog.Logger

	nextConnID atomic.Uint64

	mu    sync.RWMutex
	rooms map[string]*room
}

type room struct {
	session *match.Session

	mu      sync.Mutex
	clients map[model.ConnectionID]*client
	closed  bool
}

// NewServer creates a Server with no attached matches
func NewServer(config Config, logger *slog.Logger) *Server {
	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger.With(slog.String("component", "relay-transport")),
		rooms:  make(map[string]*room),
	}
}

// Attach routes connections for allocationID into session
func (s *Server) Attach(allocationID string, session *match.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[allocationID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyAttached, allocationID)
	}
	s.rooms[allocationID] = &room{
		session: session,
		clients: make(map[model.ConnectionID]*client),
	}
	s.logger.Info("allocation attached", slog.String("allocation_id", allocationID))
	return nil
}

// Detach stops routing allocationID and disconnects its clients
func (s *Server) Detach(allocationID string) {
	s.mu.Lock()
	rm, ok := s.rooms[allocationID]
	delete(s.rooms, allocationID)
	s.mu.Unlock()
	if !ok {
		return
	}

	rm.mu.Lock()
	rm.closed = true
	clients := make([]*client, 0, len(rm.clients))
	for _, c := range rm.clients {
		clients = append(clients, c)
	}
	rm.mu.Unlock()

	for _, c := range clients {
		c.kick(websocket.CloseGoingAway, ReasonHostEnded)
	}
	s.logger.Info("allocation detached",
		slog.String("allocation_id", allocationID),
		slog.Int("kicked_clients", len(clients)),
	)
}

// Close detaches every allocation
func (s *Server) Close() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		s.Detach(id)
	}
}

// ClientCount returns the number of live sockets on an allocation
func (s *Server) ClientCount(allocationID string) int {
	s.mu.RLock()
	rm, ok := s.rooms[allocationID]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.clients)
}

func (s *Server) room(allocationID string) (*room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rm, ok := s.rooms[allocationID]
	return rm, ok
}

// ServeHTTP handles one relay connection. The first frame from the client
// must be its identity payload.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	allocationID := mux.Vars(r)["allocationID"]
	rm, ok := s.room(allocationID)
	if !ok {
		http.Error(w, "unknown allocation", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	connID := model.ConnectionID(s.nextConnID.Add(1))
	logger := s.logger.With(
		slog.String("allocation_id", allocationID),
		slog.Uint64("connection_id", uint64(connID)),
	)

	_ = conn.SetReadDeadline(time.Now().Add(s.config.HandshakeTimeout))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		logger.Warn("handshake read failed", slog.String("error", err.Error()))
		_ = conn.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	decision := rm.session.Approve(connID, payload)
	if !decision.Approved {
		// The reason stays server-side; clients only learn they were rejected
		logger.Info("connection denied", slog.String("reason", string(decision.Reason)))
		s.writeClose(conn, websocket.ClosePolicyViolation, ReasonRejected)
		_ = conn.Close()
		return
	}

	c := &client{
		id:     connID,
		conn:   conn,
		send:   make(chan []byte, s.config.SendBufferSize),
		kicked: make(chan struct{}),
		config: s.config,
		logger: logger,
	}

	rm.mu.Lock()
	if rm.closed {
		rm.mu.Unlock()
		rm.session.Disconnect(connID)
		s.writeClose(conn, websocket.CloseGoingAway, ReasonHostEnded)
		_ = conn.Close()
		return
	}
	rm.clients[connID] = c
	rm.mu.Unlock()

	unsubscribe := rm.session.Subscribe(c.deliver)
	defer func() {
		unsubscribe()
		rm.mu.Lock()
		delete(rm.clients, connID)
		rm.mu.Unlock()
		rm.session.Disconnect(connID)
		logger.Info("client disconnected")
	}()

	snapshot := rm.session.Snapshot()
	welcome, err := encode(TypeWelcome, Welcome{
		ConnectionID: connID,
		Spawn:        decision.Spawn,
		ServerTime:   snapshot.ServerTime,
		Snapshot:     snapshot,
	})
	if err != nil {
		logger.Error("failed to encode welcome", slog.String("error", err.Error()))
		s.writeClose(conn, websocket.CloseInternalServerErr, ReasonServerError)
		_ = conn.Close()
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, welcome); err != nil {
		logger.Warn("failed to write welcome", slog.String("error", err.Error()))
		_ = conn.Close()
		return
	}
	logger.Info("client connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()

	s.readLoop(rm.session, c)

	c.kick(websocket.CloseNormalClosure, "")
	<-writerDone
}

func (s *Server) readLoop(session *match.Session, c *client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("read failed", slog.String("error", err.Error()))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("discarding malformed message", slog.String("error", err.Error()))
			continue
		}

		switch env.Type {
		case TypeContact:
			var contact Contact
			if err := json.Unmarshal(env.Payload, &contact); err != nil {
				c.logger.Warn("discarding malformed contact", slog.String("error", err.Error()))
				continue
			}
			if _, err := session.Contact(c.id, contact.TargetID); err != nil {
				c.logger.Debug("contact ignored",
					slog.Uint64("target_id", uint64(contact.TargetID)),
					slog.String("error", err.Error()),
				)
			}
		default:
			c.logger.Debug("ignoring unknown message type", slog.String("type", env.Type))
		}
	}
}

func (s *Server) writeClose(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.config.WriteWait))
}

// client is one approved socket. Only writeLoop writes after the welcome.
type client struct {
	id     model.ConnectionID
	conn   *websocket.Conn
	send   chan []byte
	config Config
	logger *slog.Logger

	kickOnce   sync.Once
	kicked     chan struct{}
	kickCode   int
	kickReason string
}

// deliver runs on the publisher's goroutine and must never block
func (c *client) deliver(evt model.Event) {
	msg, err := EncodeEvent(evt)
	if err != nil {
		c.logger.Error("failed to encode event", slog.String("error", err.Error()))
		return
	}
	data, err := encode(TypeEvent, msg)
	if err != nil {
		c.logger.Error("failed to encode event", slog.String("error", err.Error()))
		return
	}

	select {
	case <-c.kicked:
	case c.send <- data:
	default:
		c.logger.Warn("client buffer full, dropping client")
		c.kick(websocket.ClosePolicyViolation, ReasonSlowClient)
	}
}

func (c *client) kick(code int, reason string) {
	c.kickOnce.Do(func() {
		c.kickCode = code
		c.kickReason = reason
		close(c.kicked)
	})
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(c.config.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.kicked:
			c.flush()
			msg := websocket.FormatCloseMessage(c.kickCode, c.kickReason)
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.config.WriteWait))
			return
		}
	}
}

// flush writes whatever is already queued so nothing published before a kick is lost
func (c *client) flush() {
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}
