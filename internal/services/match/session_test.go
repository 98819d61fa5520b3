package match

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/tagmatch/internal/dependencies/mocks"
	"github.com/mcoot/tagmatch/internal/model"
	"github.com/mcoot/tagmatch/internal/testutil"
)

type SessionSuite struct {
	suite.Suite
	clock    *mocks.MockClock
	random   *mocks.MockRandom
	session  *Session
	recorder *testutil.EventRecorder
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func (s *SessionSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()

	cfg := DefaultConfig()
	cfg.Selection.SelectionDelay = 20 * time.Millisecond
	cfg.Selection.ValidationInterval = 30 * time.Millisecond

	s.session = New(cfg, nil, s.clock, s.random, testutil.NopLogger())
	s.recorder = &testutil.EventRecorder{}
	s.session.Subscribe(s.recorder.Record)
}

func (s *SessionSuite) TearDownTest() {
	s.session.Close()
}

func payload(authID, username string) []byte {
	data, _ := json.Marshal(model.UserIdentity{AuthID: model.AuthID(authID), Username: username})
	return data
}

func (s *SessionSuite) join(connID model.ConnectionID, authID string) {
	decision := s.session.Approve(connID, payload(authID, "player-"+authID))
	s.Require().True(decision.Approved)
}

func (s *SessionSuite) taggedIDs() []model.ConnectionID {
	var out []model.ConnectionID
	for _, p := range s.session.Participants() {
		if p.IsTagged() {
			out = append(out, p.ConnectionID)
		}
	}
	return out
}

func (s *SessionSuite) TestThreeJoinsGetDistinctSpawnsAndZeroStandings() {
	spawns := map[model.SpawnPoint]bool{}
	for i := 1; i <= 3; i++ {
		decision := s.session.Approve(model.ConnectionID(i), payload(fmt.Sprintf("auth-%d", i), "p"))
		s.Require().True(decision.Approved)
		spawns[decision.Spawn] = true
	}

	s.Len(spawns, 3)
	s.Equal(3, s.session.ConnectionCount())

	standings := s.session.Standings()
	s.Require().Len(standings, 3)
	for _, entry := range standings {
		s.Equal(0, entry.TaggedSeconds)
	}
	for _, p := range s.session.Participants() {
		s.Equal(model.TagStatusNone, p.TagStatus)
	}
}

func (s *SessionSuite) TestDuplicateIdentityKeepsFirstBinding() {
	s.join(1, "X")

	decision := s.session.Approve(2, payload("X", "impostor"))
	s.False(decision.Approved)
	s.Equal(model.DenyDuplicateIdentity, decision.Reason)

	identity, err := s.session.Identity(1)
	s.Require().NoError(err)
	s.Equal(model.AuthID("X"), identity.AuthID)
	s.Equal(1, s.session.ConnectionCount())
	s.Len(s.session.Standings(), 1)
}

func (s *SessionSuite) TestCountdownLeadsToExactlyOneTagged() {
	s.join(1, "a")
	s.join(2, "b")
	s.join(3, "c")

	s.Require().NoError(s.session.StartMatch())
	s.clock.Advance(2 * time.Second)

	status := s.session.timer.Tick()
	s.Equal(model.PhaseCountdown, status.Phase)
	s.Equal(121*time.Second, status.Remaining)
	s.Equal(1, s.recorder.Count(model.EventCountdownBegan))

	s.Eventually(func() bool {
		return len(s.taggedIDs()) == 1
	}, time.Second, 5*time.Millisecond)
}

func (s *SessionSuite) TestTaggedDisconnectIsReplacedByValidation() {
	s.join(1, "a")
	s.join(2, "b")
	s.join(3, "c")

	s.Require().NoError(s.session.StartMatch())
	s.session.timer.Tick()
	s.Eventually(func() bool {
		return len(s.taggedIDs()) == 1
	}, time.Second, 5*time.Millisecond)

	first := s.taggedIDs()[0]
	s.True(s.session.Disconnect(first))

	s.Eventually(func() bool {
		tagged := s.taggedIDs()
		return len(tagged) == 1 && tagged[0] != first
	}, time.Second, 5*time.Millisecond)
}

func (s *SessionSuite) TestContactTransfersTagAndFlushesTime() {
	s.join(1, "a")
	s.join(2, "b")

	tagged, err := s.session.tagging.Tag(2)
	s.Require().NoError(err)
	s.Require().True(tagged)

	s.clock.Advance(10 * time.Second)
	s.session.tagging.Tick(s.clock.Now())

	b, err := s.session.tagging.Participant(2)
	s.Require().NoError(err)
	s.InDelta(10.0, b.AccumulatedTaggedSeconds, 0.001)

	a, err := s.session.tagging.Participant(1)
	s.Require().NoError(err)
	s.Require().Equal(model.TagStatusTaggable, a.TagStatus)

	s.clock.Advance(4 * time.Second)
	transferred, err := s.session.Contact(1, 2)
	s.Require().NoError(err)
	s.True(transferred)

	a, _ = s.session.tagging.Participant(1)
	b, _ = s.session.tagging.Participant(2)
	s.Equal(model.TagStatusTagged, a.TagStatus)
	s.Equal(model.TagStatusNone, b.TagStatus)
	s.InDelta(14.0, b.AccumulatedTaggedSeconds, 0.001)
	s.Equal(2*time.Second, b.CooldownRemaining)

	standings := s.session.Standings()
	s.Require().NotEmpty(standings)
	s.Equal(model.ConnectionID(2), standings[0].ConnectionID)
	s.Equal(14, standings[0].TaggedSeconds)
}

func (s *SessionSuite) TestSnapshotReflectsState() {
	s.join(1, "a")
	s.Require().NoError(s.session.StartMatch())

	snapshot := s.session.Snapshot()
	s.Equal(s.clock.Now(), snapshot.ServerTime)
	s.True(snapshot.Timer.IsRunning)
	s.Equal(model.PhaseCountdown, snapshot.Status.Phase)
	s.Equal("3", snapshot.Status.Display)
	s.Len(snapshot.Participants, 1)
	s.Len(snapshot.Standings, 1)
}

func (s *SessionSuite) TestStartMatchTwiceFails() {
	s.Require().NoError(s.session.StartMatch())
	s.ErrorIs(s.session.StartMatch(), model.ErrTimerRunning)
}

func (s *SessionSuite) TestCloseDisconnectsEveryoneAndDeniesNewJoins() {
	s.join(1, "a")
	s.join(2, "b")

	s.session.Close()
	s.session.Close()

	s.Equal(2, s.recorder.Count(model.EventParticipantLeft))
	s.Equal(0, s.session.ConnectionCount())
	s.Empty(s.session.Participants())
	s.Empty(s.session.Standings())

	decision := s.session.Approve(3, payload("c", "late"))
	s.False(decision.Approved)
	s.Equal(model.DenySessionClosed, decision.Reason)
}
