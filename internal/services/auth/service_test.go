package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/tagmatch/internal/dependencies/mocks"
	"github.com/mcoot/tagmatch/internal/model"
	"github.com/mcoot/tagmatch/internal/storage/memory"
	"github.com/mcoot/tagmatch/internal/testutil"
)

type ServiceSuite struct {
	suite.Suite
	storage *memory.Storage
	clock   *mocks.MockClock
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.storage = memory.NewWithClock(s.clock.Now)
	cfg := DefaultConfig()
	cfg.IdentitySecret = []byte("test-secret")
	s.service = New(s.storage, s.clock, cfg, testutil.NopLogger())
	s.ctx = context.Background()
}

// CreateGuestPlayer tests

func (s *ServiceSuite) TestCreateGuestPlayerSucceeds() {
	session, err := s.service.CreateGuestPlayer(s.ctx, "Alice")
	s.Require().NoError(err)

	s.True(strings.HasPrefix(session.Token, "sess_"))
	s.Equal("Alice", session.Player.DisplayName)
	s.True(session.Player.IsGuest)
	s.True(strings.HasPrefix(string(session.PlayerID), "p_"))
}

func (s *ServiceSuite) TestCreateGuestPlayerPersistsPlayer() {
	session, _ := s.service.CreateGuestPlayer(s.ctx, "Alice")

	player, err := s.storage.GetPlayer(s.ctx, session.PlayerID)
	s.Require().NoError(err)
	s.Equal("Alice", player.DisplayName)
}

func (s *ServiceSuite) TestGuestPlayersGetDistinctIDs() {
	a, _ := s.service.CreateGuestPlayer(s.ctx, "Same")
	b, _ := s.service.CreateGuestPlayer(s.ctx, "Same")
	s.NotEqual(a.PlayerID, b.PlayerID)
}

// RegisterPlayer tests

func (s *ServiceSuite) TestRegisterPlayerPersistsHashedPassword() {
	session, err := s.service.RegisterPlayer(s.ctx, "alice", "password123", "Alice")
	s.Require().NoError(err)
	s.False(session.Player.IsGuest)

	rp, err := s.storage.GetRegisteredPlayerByUsername(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(session.PlayerID, rp.PlayerID)
	s.NotEqual("password123", rp.PasswordHash)
}

func (s *ServiceSuite) TestRegisterPlayerFailsIfUsernameExists() {
	_, _ = s.service.RegisterPlayer(s.ctx, "alice", "password123", "Alice")

	_, err := s.service.RegisterPlayer(s.ctx, "alice", "different", "Alice2")
	s.ErrorIs(err, ErrUsernameExists)
}

// Login tests

func (s *ServiceSuite) TestLoginKeepsPlayerID() {
	registered, _ := s.service.RegisterPlayer(s.ctx, "alice", "password123", "Alice")

	session, err := s.service.Login(s.ctx, "alice", "password123")
	s.Require().NoError(err)
	s.Equal(registered.PlayerID, session.PlayerID)
	s.NotEqual(registered.Token, session.Token)
}

func (s *ServiceSuite) TestLoginFailsWithWrongPassword() {
	_, _ = s.service.RegisterPlayer(s.ctx, "alice", "password123", "Alice")

	_, err := s.service.Login(s.ctx, "alice", "wrongpassword")
	s.ErrorIs(err, ErrInvalidCredentials)
}

func (s *ServiceSuite) TestLoginFailsWithUnknownUser() {
	_, err := s.service.Login(s.ctx, "nobody", "password123")
	s.ErrorIs(err, ErrInvalidCredentials)
}

// Session tests

func (s *ServiceSuite) TestValidateSessionSucceeds() {
	session, _ := s.service.CreateGuestPlayer(s.ctx, "Alice")

	validated, err := s.service.ValidateSession(s.ctx, session.Token)
	s.Require().NoError(err)
	s.Equal(session.PlayerID, validated.PlayerID)
}

func (s *ServiceSuite) TestValidateSessionFailsWithInvalidToken() {
	_, err := s.service.ValidateSession(s.ctx, "invalid_token")
	s.ErrorIs(err, ErrInvalidSession)
}

func (s *ServiceSuite) TestValidateSessionFailsWhenExpired() {
	session, _ := s.service.CreateGuestPlayer(s.ctx, "Alice")

	s.clock.Advance(25 * time.Hour)

	_, err := s.service.ValidateSession(s.ctx, session.Token)
	s.ErrorIs(err, ErrInvalidSession)
}

func (s *ServiceSuite) TestInvalidateSessionRemovesSession() {
	session, _ := s.service.CreateGuestPlayer(s.ctx, "Alice")

	s.Require().NoError(s.service.InvalidateSession(s.ctx, session.Token))

	_, err := s.service.ValidateSession(s.ctx, session.Token)
	s.ErrorIs(err, ErrInvalidSession)
}

func (s *ServiceSuite) TestGetPlayer() {
	session, _ := s.service.CreateGuestPlayer(s.ctx, "Alice")

	player, err := s.service.GetPlayer(s.ctx, session.Token)
	s.Require().NoError(err)
	s.Equal("Alice", player.DisplayName)

	_, err = s.service.GetPlayer(s.ctx, "invalid_token")
	s.ErrorIs(err, ErrInvalidSession)
}

// Identity token tests

func (s *ServiceSuite) TestIdentityTokenRoundTrip() {
	session, _ := s.service.CreateGuestPlayer(s.ctx, "Alice")

	token, err := s.service.IssueIdentityToken(session.Player)
	s.Require().NoError(err)

	authID, err := s.service.VerifyIdentityToken(token)
	s.Require().NoError(err)
	s.Equal(session.PlayerID.AuthID(), authID)
}

func (s *ServiceSuite) TestIdentityTokenExpires() {
	token, _ := s.service.IssueIdentityToken(model.Player{ID: "p_1"})

	s.clock.Advance(2 * time.Hour)

	_, err := s.service.VerifyIdentityToken(token)
	s.ErrorIs(err, ErrInvalidIdentityToken)
}

func (s *ServiceSuite) TestIdentityTokenFromOtherSecretRejected() {
	other := New(s.storage, s.clock, Config{IdentitySecret: []byte("other")}, testutil.NopLogger())
	token, _ := other.IssueIdentityToken(model.Player{ID: "p_1"})

	_, err := s.service.VerifyIdentityToken(token)
	s.ErrorIs(err, ErrInvalidIdentityToken)

	_, err = s.service.VerifyIdentityToken("garbage")
	s.ErrorIs(err, ErrInvalidIdentityToken)
}

func (s *ServiceSuite) TestIdentityTokenNeedsSecret() {
	unconfigured := New(s.storage, s.clock, DefaultConfig(), testutil.NopLogger())

	_, err := unconfigured.IssueIdentityToken(model.Player{ID: "p_1"})
	s.ErrorIs(err, model.ErrConfiguration)
}
