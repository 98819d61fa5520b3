package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/tagmatch/internal/api/response"
	"github.com/mcoot/tagmatch/internal/dependencies/mocks"
	"github.com/mcoot/tagmatch/internal/model"
	"github.com/mcoot/tagmatch/internal/services/match"
	"github.com/mcoot/tagmatch/internal/testutil"
	"github.com/mcoot/tagmatch/internal/transport/ws"
)

type fakeBackend struct {
	mu         sync.Mutex
	loginErr   error
	joinErr    error
	joinCalls  int
	joinCodes  map[string]string // entry id -> join code
	identityTk string
}

func (b *fakeBackend) GuestLogin(_ context.Context, displayName string) (*response.AuthResponse, error) {
	if b.loginErr != nil {
		return nil, b.loginErr
	}
	return &response.AuthResponse{
		Player:        response.Player{ID: "player-1", DisplayName: displayName, IsGuest: true},
		SessionToken:  "session-1",
		IdentityToken: b.identityTk,
	}, nil
}

func (b *fakeBackend) JoinAllocation(_ context.Context, joinCode string) (*response.Allocation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.joinCalls++
	if b.joinErr != nil {
		return nil, b.joinErr
	}
	return &response.Allocation{AllocationID: "alloc-" + joinCode, Endpoint: "ws://relay/" + joinCode, MaxConnections: 8}, nil
}

func (b *fakeBackend) JoinEntry(_ context.Context, entryID string) (*response.Entry, error) {
	code, ok := b.joinCodes[entryID]
	if !ok {
		return nil, model.ErrEntryNotFound
	}
	return &response.Entry{ID: entryID, Data: map[string]string{"joinCode": code}}, nil
}

func (b *fakeBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.joinCalls
}

type fakeConn struct {
	welcome ws.Welcome
	events  chan model.Event

	mu         sync.Mutex
	done       chan struct{}
	ended      bool
	reason     string
	closed     bool
	closeCalls int
	contacts   []model.ConnectionID
}

func newFakeConn(id model.ConnectionID, serverTime time.Time) *fakeConn {
	return &fakeConn{
		welcome: ws.Welcome{
			ConnectionID: id,
			ServerTime:   serverTime,
			Snapshot:     match.Snapshot{ServerTime: serverTime, MatchDuration: time.Minute},
		},
		events: make(chan model.Event, 16),
		done:   make(chan struct{}),
	}
}

func (c *fakeConn) Welcome() ws.Welcome        { return c.welcome }
func (c *fakeConn) Events() <-chan model.Event { return c.events }
func (c *fakeConn) Done() <-chan struct{}      { return c.done }

func (c *fakeConn) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) SendContact(target model.ConnectionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contacts = append(c.contacts, target)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closeCalls++
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.end()
	return nil
}

// hostClose ends the connection from the host side
func (c *fakeConn) hostClose(reason string) {
	c.mu.Lock()
	c.reason = reason
	c.mu.Unlock()
	c.end()
}

func (c *fakeConn) end() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	c.ended = true
	close(c.events)
	close(c.done)
}

func (c *fakeConn) closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

type fakeConnector struct {
	mu         sync.Mutex
	conns      []*fakeConn
	endpoints  []string
	identities []model.UserIdentity
	err        error
	serverTime time.Time
}

func (f *fakeConnector) Connect(_ context.Context, endpoint string, identity model.UserIdentity) (Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endpoints = append(f.endpoints, endpoint)
	f.identities = append(f.identities, identity)
	if f.err != nil {
		return nil, f.err
	}
	conn := newFakeConn(model.ConnectionID(len(f.conns)+1), f.serverTime)
	f.conns = append(f.conns, conn)
	return conn, nil
}

func (f *fakeConnector) last() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[len(f.conns)-1]
}

type ManagerSuite struct {
	suite.Suite
	ctx       context.Context
	backend   *fakeBackend
	connector *fakeConnector
	clock     *mocks.MockClock
	manager   *Manager
	recorder  *testutil.EventRecorder
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.backend = &fakeBackend{joinCodes: map[string]string{"entry-1": "ABC234"}}
	s.connector = &fakeConnector{serverTime: s.clock.Now()}

	cfg := DefaultConfig()
	cfg.Username = "Alice"
	cfg.TickInterval = time.Hour
	s.manager = New(cfg, s.backend, s.connector, s.clock, testutil.NopLogger())
	s.recorder = &testutil.EventRecorder{}
	s.manager.Subscribe(s.recorder.Record)
}

func (s *ManagerSuite) TearDownTest() {
	s.Require().NoError(s.manager.Close())
}

func (s *ManagerSuite) join() *fakeConn {
	_, err := s.manager.Authenticate(s.ctx)
	s.Require().NoError(err)
	s.Require().NoError(s.manager.Join(s.ctx, "ABC234"))
	return s.connector.last()
}

func (s *ManagerSuite) TestStartsOnPreMatchScreen() {
	s.Equal(model.ScreenPreMatch, s.manager.Screen())
	s.Nil(s.manager.Mirror())
}

func (s *ManagerSuite) TestAuthenticateBuildsIdentity() {
	s.backend.identityTk = "signed"

	identity, err := s.manager.Authenticate(s.ctx)
	s.Require().NoError(err)
	s.Equal(model.AuthID("player-1"), identity.AuthID)
	s.Equal("Alice", identity.Username)
	s.Equal("signed", identity.IdentityToken)

	stored, ok := s.manager.Identity()
	s.True(ok)
	s.Equal(identity, stored)
}

func (s *ManagerSuite) TestAuthenticateFailureIsFatal() {
	s.backend.loginErr = errors.New("service down")

	_, err := s.manager.Authenticate(s.ctx)
	s.ErrorIs(err, model.ErrAuthenticationFailure)
	_, ok := s.manager.Identity()
	s.False(ok)
}

func (s *ManagerSuite) TestJoinRequiresAuthentication() {
	err := s.manager.Join(s.ctx, "ABC234")
	s.ErrorIs(err, model.ErrAuthenticationFailure)
	s.Equal(0, s.backend.calls())
}

func (s *ManagerSuite) TestJoinConnectsWithIdentity() {
	conn := s.join()

	s.Equal(model.ScreenInMatch, s.manager.Screen())
	s.Equal([]string{"ws://relay/ABC234"}, s.connector.endpoints)
	s.Equal(model.AuthID("player-1"), s.connector.identities[0].AuthID)
	s.Equal("Alice", s.connector.identities[0].Username)

	mirror := s.manager.Mirror()
	s.Require().NotNil(mirror)
	s.Equal(conn.welcome.ConnectionID, mirror.Self())
}

func (s *ManagerSuite) TestInvalidJoinCodeIsNotRetried() {
	_, err := s.manager.Authenticate(s.ctx)
	s.Require().NoError(err)
	s.backend.joinErr = fmt.Errorf("lookup: %w", model.ErrInvalidJoinCode)

	err = s.manager.Join(s.ctx, "NOPE99")
	s.ErrorIs(err, model.ErrInvalidJoinCode)
	s.Equal(1, s.backend.calls())
	s.Empty(s.connector.endpoints)
	s.Equal(model.ScreenPreMatch, s.manager.Screen())
}

func (s *ManagerSuite) TestJoinServiceFailureIsReported() {
	_, err := s.manager.Authenticate(s.ctx)
	s.Require().NoError(err)
	s.backend.joinErr = errors.New("timeout")

	err = s.manager.Join(s.ctx, "ABC234")
	s.ErrorIs(err, model.ErrJoinCodeFailure)
	s.Equal(1, s.backend.calls())
}

func (s *ManagerSuite) TestRejectedConnectionStaysPreMatch() {
	_, err := s.manager.Authenticate(s.ctx)
	s.Require().NoError(err)
	s.connector.err = fmt.Errorf("%w: connection rejected", model.ErrConnectionRejected)

	err = s.manager.Join(s.ctx, "ABC234")
	s.ErrorIs(err, model.ErrConnectionRejected)
	s.Equal(model.ScreenPreMatch, s.manager.Screen())
}

func (s *ManagerSuite) TestJoinWhileConnectedFails() {
	s.join()

	err := s.manager.Join(s.ctx, "ABC234")
	s.ErrorIs(err, model.ErrSessionAlreadyActive)
	s.Len(s.connector.conns, 1)
}

func (s *ManagerSuite) TestJoinEntryUsesMemberJoinCode() {
	_, err := s.manager.Authenticate(s.ctx)
	s.Require().NoError(err)

	s.Require().NoError(s.manager.JoinEntry(s.ctx, "entry-1"))
	s.Equal([]string{"ws://relay/ABC234"}, s.connector.endpoints)

	s.Require().NoError(s.manager.Disconnect())
	err = s.manager.JoinEntry(s.ctx, "missing")
	s.ErrorIs(err, model.ErrRegistryFailure)
}

func (s *ManagerSuite) TestEventsReachSubscribers() {
	conn := s.join()
	s.recorder.Reset()

	conn.events <- model.Event{Type: model.EventParticipantJoined, ConnectionID: 7, AuthID: "z", Username: "Zed"}

	s.Eventually(func() bool {
		return s.recorder.Count(model.EventParticipantJoined) == 1
	}, time.Second, 5*time.Millisecond)
	_, ok := s.manager.Mirror().Participant(7)
	s.True(ok)
}

func (s *ManagerSuite) TestContactIsSentOverConnection() {
	s.ErrorIs(s.manager.Contact(3), model.ErrNotConnected)

	conn := s.join()
	s.Require().NoError(s.manager.Contact(3))
	s.Equal([]model.ConnectionID{3}, conn.contacts)
}

func (s *ManagerSuite) TestForcedDisconnectReturnsToPreMatch() {
	conn := s.join()

	conn.hostClose(ws.ReasonHostEnded)

	reason, err := s.manager.Wait(s.ctx)
	s.Require().NoError(err)
	s.Equal(ws.ReasonHostEnded, reason)
	s.Equal(model.ScreenPreMatch, s.manager.Screen())
	s.Nil(s.manager.Mirror())
	s.Equal(1, conn.closes())
}

func (s *ManagerSuite) TestForcedDisconnectOnPreMatchIsIgnored() {
	conn := s.join()
	s.Require().NoError(s.manager.Disconnect())
	s.Equal(1, conn.closes())

	s.manager.HandleForcedDisconnect("kicked")
	s.Equal(1, conn.closes())
	s.Empty(s.manager.LastReason())
}

func (s *ManagerSuite) TestForcedDisconnectClosesOpenConnectionOnce() {
	conn := s.join()

	s.manager.HandleForcedDisconnect("kicked")
	s.manager.HandleForcedDisconnect("kicked again")

	s.Equal(model.ScreenPreMatch, s.manager.Screen())
	s.Equal("kicked", s.manager.LastReason())
	s.True(conn.Closed())
	s.Equal(1, conn.closes())

	_, err := s.manager.Wait(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, conn.closes())
}

func (s *ManagerSuite) TestDisconnectThenRejoin() {
	first := s.join()

	s.Require().NoError(s.manager.Disconnect())
	reason, err := s.manager.Wait(s.ctx)
	s.Require().NoError(err)
	s.Empty(reason)
	s.True(first.Closed())
	s.Equal(model.ScreenPreMatch, s.manager.Screen())

	s.Require().NoError(s.manager.Join(s.ctx, "ABC234"))
	s.Equal(model.ScreenInMatch, s.manager.Screen())
	s.Len(s.connector.conns, 2)
}

func (s *ManagerSuite) TestDisconnectWhenIdleIsNoop() {
	s.NoError(s.manager.Disconnect())
	reason, err := s.manager.Wait(s.ctx)
	s.NoError(err)
	s.Empty(reason)
}
