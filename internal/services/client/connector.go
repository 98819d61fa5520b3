package client

import (
	"context"
	"log/slog"

	"github.com/mcoot/tagmatch/internal/model"
	"github.com/mcoot/tagmatch/internal/transport/ws"
)

// Connection is one live relay connection
type Connection interface {
	Welcome() ws.Welcome
	// Events is closed when the connection ends
	Events() <-chan model.Event
	Done() <-chan struct{}
	// Reason is the close reason the host gave
	Reason() string
	// Closed reports whether this side closed the connection
	Closed() bool
	SendContact(target model.ConnectionID) error
	Close() error
}

// Connector opens relay connections
type Connector interface {
	Connect(ctx context.Context, endpoint string, identity model.UserIdentity) (Connection, error)
}

// WSConnector dials relay endpoints over websockets
type WSConnector struct {
	Logger *slog.Logger
}

// Connect dials endpoint and presents identity
func (c WSConnector) Connect(ctx context.Context, endpoint string, identity model.UserIdentity) (Connection, error) {
	conn, err := ws.Dial(ctx, endpoint, identity, c.Logger)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
