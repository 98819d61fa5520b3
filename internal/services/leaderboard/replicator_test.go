package leaderboard

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/tagmatch/internal/dependencies/mocks"
	"github.com/mcoot/tagmatch/internal/events"
	"github.com/mcoot/tagmatch/internal/model"
	"github.com/mcoot/tagmatch/internal/replication"
	"github.com/mcoot/tagmatch/internal/testutil"
)

type fakeActive struct {
	mu   sync.Mutex
	live map[model.ConnectionID]bool
}

func (f *fakeActive) IsConnected(id model.ConnectionID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live[id]
}

func (f *fakeActive) set(id model.ConnectionID, live bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live[id] = live
}

type ReplicatorSuite struct {
	suite.Suite
	bus        *events.Bus
	recorder   *testutil.EventRecorder
	clock      *mocks.MockClock
	active     *fakeActive
	replicator *Replicator
}

func TestReplicatorSuite(t *testing.T) {
	suite.Run(t, new(ReplicatorSuite))
}

func (s *ReplicatorSuite) SetupTest() {
	logger := testutil.NopLogger()
	s.bus = events.NewBus(logger)
	s.recorder = &testutil.EventRecorder{}
	s.bus.Subscribe(s.recorder.Record, model.EventStandingChanged)
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.active = &fakeActive{live: map[model.ConnectionID]bool{}}
	s.replicator = New(DefaultConfig(), replication.RoleAuthority, s.active, s.bus, s.clock, logger)
}

func (s *ReplicatorSuite) TearDownTest() {
	s.replicator.Close()
}

func (s *ReplicatorSuite) TestUpsertInsertsThenOverwrites() {
	s.Require().NoError(s.replicator.UpsertStanding(1, "a", 0))
	s.Require().NoError(s.replicator.UpsertStanding(1, "a", 5))

	entries := s.replicator.Entries()
	s.Require().Len(entries, 1)
	s.Equal(5, entries[0].TaggedSeconds)

	changes := s.recorder.OfType(model.EventStandingChanged)
	s.Require().Len(changes, 2)
	s.Equal("add", changes[0].Payload.(model.StandingChangePayload).Change)
	s.Equal("update", changes[1].Payload.(model.StandingChangePayload).Change)
}

func (s *ReplicatorSuite) TestIdenticalUpsertIsSilent() {
	_ = s.replicator.UpsertStanding(1, "a", 3)
	_ = s.replicator.UpsertStanding(1, "a", 3)
	s.Equal(1, s.recorder.Count(model.EventStandingChanged))
}

func (s *ReplicatorSuite) TestRemoveStanding() {
	_ = s.replicator.UpsertStanding(1, "a", 0)

	s.Require().NoError(s.replicator.RemoveStanding(1))
	s.Require().NoError(s.replicator.RemoveStanding(1))

	s.Equal(0, s.replicator.Len())
	s.Equal(2, s.recorder.Count(model.EventStandingChanged))
}

func (s *ReplicatorSuite) TestStandingsSortedWithStableTies() {
	_ = s.replicator.UpsertStanding(1, "a", 3)
	_ = s.replicator.UpsertStanding(2, "b", 7)
	_ = s.replicator.UpsertStanding(3, "c", 3)
	_ = s.replicator.UpsertStanding(4, "d", 10)

	var order []model.ConnectionID
	for _, e := range s.replicator.Standings() {
		order = append(order, e.ConnectionID)
	}
	s.Equal([]model.ConnectionID{4, 2, 1, 3}, order)

	top := s.replicator.Top(2)
	s.Require().Len(top, 2)
	s.Equal(model.ConnectionID(4), top[0].ConnectionID)
	s.Len(s.replicator.Top(10), 4)
}

func (s *ReplicatorSuite) TestFollowsParticipantEvents() {
	for i, name := range []string{"a", "b", "c"} {
		s.bus.Publish(model.Event{Type: model.EventParticipantJoined, ConnectionID: model.ConnectionID(i + 1), Username: name})
	}

	entries := s.replicator.Entries()
	s.Require().Len(entries, 3)
	for _, e := range entries {
		s.Equal(0, e.TaggedSeconds)
	}

	s.bus.Publish(model.Event{
		Type:         model.EventTaggedTimeChanged,
		ConnectionID: 2,
		Username:     "b",
		Payload:      model.TaggedTimeChangedPayload{Seconds: 4.9},
	})
	s.Equal(model.ConnectionID(2), s.replicator.Standings()[0].ConnectionID)
	s.Equal(4, s.replicator.Standings()[0].TaggedSeconds)

	s.bus.Publish(model.Event{Type: model.EventParticipantLeft, ConnectionID: 2})
	s.Equal(2, s.replicator.Len())
}

func (s *ReplicatorSuite) TestTaggedTimeAfterLeaveDoesNotResurrect() {
	s.bus.Publish(model.Event{Type: model.EventParticipantJoined, ConnectionID: 1, Username: "a"})
	s.bus.Publish(model.Event{Type: model.EventParticipantLeft, ConnectionID: 1})
	s.bus.Publish(model.Event{
		Type:         model.EventTaggedTimeChanged,
		ConnectionID: 1,
		Payload:      model.TaggedTimeChangedPayload{Seconds: 2},
	})

	s.Equal(0, s.replicator.Len())
}

func (s *ReplicatorSuite) TestSweepRemovesStaleEntries() {
	_ = s.replicator.UpsertStanding(1, "a", 0)
	_ = s.replicator.UpsertStanding(2, "b", 0)
	_ = s.replicator.UpsertStanding(3, "c", 0)
	s.active.set(1, true)
	s.active.set(3, true)

	s.Equal(1, s.replicator.Sweep())
	s.Equal(0, s.replicator.Sweep())

	var ids []model.ConnectionID
	for _, e := range s.replicator.Entries() {
		ids = append(ids, e.ConnectionID)
	}
	s.Equal([]model.ConnectionID{1, 3}, ids)
}

func (s *ReplicatorSuite) TestObserverMirrorsAuthority() {
	observer := New(DefaultConfig(), replication.RoleObserver, nil, events.NewBus(testutil.NopLogger()), s.clock, testutil.NopLogger())
	defer observer.Close()

	s.bus.Subscribe(func(e model.Event) {
		observer.Apply(e.Payload.(model.StandingChangePayload))
	}, model.EventStandingChanged)

	_ = s.replicator.UpsertStanding(1, "a", 1)
	_ = s.replicator.UpsertStanding(2, "b", 9)
	_ = s.replicator.UpsertStanding(1, "a", 12)
	_ = s.replicator.RemoveStanding(2)

	s.Equal(s.replicator.Standings(), observer.Standings())
	s.ErrorIs(observer.UpsertStanding(3, "c", 0), model.ErrNotAuthority)
	s.ErrorIs(observer.RemoveStanding(1), model.ErrNotAuthority)
	s.Equal(0, observer.Sweep())
}
