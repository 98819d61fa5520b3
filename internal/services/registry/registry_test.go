package registry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/tagmatch/internal/dependencies/mocks"
	"github.com/mcoot/tagmatch/internal/model"
	"github.com/mcoot/tagmatch/internal/testutil"
)

// RegistrySuite runs the same contract against every implementation
type RegistrySuite struct {
	suite.Suite
	newService func() Service
	elapse     func(d time.Duration)
	teardown   func()

	clock    *mocks.MockClock
	registry Service
	ctx      context.Context
}

func (s *RegistrySuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.registry = s.newService()
	s.ctx = context.Background()
}

func (s *RegistrySuite) TearDownTest() {
	if s.teardown != nil {
		s.teardown()
	}
}

func TestMemoryRegistry(t *testing.T) {
	st := &RegistrySuite{}
	st.newService = func() Service {
		return NewMemory(Config{EntryTTL: 30 * time.Second}, st.clock, testutil.NopLogger())
	}
	st.elapse = func(d time.Duration) { st.clock.Advance(d) }
	suite.Run(t, st)
}

func TestRedisRegistry(t *testing.T) {
	st := &RegistrySuite{}
	var mini *miniredis.Miniredis
	var client *redis.Client
	st.newService = func() Service {
		mini = miniredis.RunT(st.T())
		client = redis.NewClient(&redis.Options{Addr: mini.Addr()})
		return NewRedis(client, Config{EntryTTL: 30 * time.Second}, st.clock, testutil.NopLogger())
	}
	st.elapse = func(d time.Duration) {
		st.clock.Advance(d)
		mini.FastForward(d)
	}
	st.teardown = func() {
		_ = client.Close()
		mini.Close()
	}
	suite.Run(t, st)
}

func joinCodeData(code string) map[string]DataValue {
	return map[string]DataValue{
		DataKeyJoinCode: {Value: code, Visibility: VisibilityMember},
		"mode":          {Value: "tag", Visibility: VisibilityPublic},
	}
}

func (s *RegistrySuite) create() *Entry {
	entry, err := s.registry.CreateEntry(s.ctx, "host", "host's Lobby", 3, joinCodeData("ABC234"))
	s.Require().NoError(err)
	return entry
}

func (s *RegistrySuite) TestCreateEntry() {
	entry := s.create()

	s.NotEmpty(entry.ID)
	s.Equal("host's Lobby", entry.Name)
	s.Equal([]model.AuthID{"host"}, entry.Members)
	s.Equal("ABC234", entry.Data[DataKeyJoinCode].Value)
}

func (s *RegistrySuite) TestCreateEntryValidates() {
	_, err := s.registry.CreateEntry(s.ctx, "host", "", 3, nil)
	s.ErrorIs(err, model.ErrRegistryFailure)
	_, err = s.registry.CreateEntry(s.ctx, "host", "name", 0, nil)
	s.ErrorIs(err, model.ErrRegistryFailure)
}

func (s *RegistrySuite) TestMemberOnlyDataHiddenFromOutsiders() {
	entry := s.create()

	outside, err := s.registry.GetEntry(s.ctx, entry.ID, "stranger")
	s.Require().NoError(err)
	_, hasCode := outside.Data[DataKeyJoinCode]
	s.False(hasCode)
	s.Equal("tag", outside.Data["mode"].Value)

	joined, err := s.registry.AddMember(s.ctx, entry.ID, "stranger")
	s.Require().NoError(err)
	s.Equal("ABC234", joined.Data[DataKeyJoinCode].Value)
}

func (s *RegistrySuite) TestAddMemberIsIdempotentAndBounded() {
	entry := s.create()

	_, err := s.registry.AddMember(s.ctx, entry.ID, "a")
	s.Require().NoError(err)
	_, err = s.registry.AddMember(s.ctx, entry.ID, "a")
	s.Require().NoError(err)
	_, err = s.registry.AddMember(s.ctx, entry.ID, "b")
	s.Require().NoError(err)

	_, err = s.registry.AddMember(s.ctx, entry.ID, "c")
	s.ErrorIs(err, model.ErrEntryFull)

	got, _ := s.registry.GetEntry(s.ctx, entry.ID, "host")
	s.Equal([]model.AuthID{"host", "a", "b"}, got.Members)
}

func (s *RegistrySuite) TestRemoveMember() {
	entry := s.create()
	_, _ = s.registry.AddMember(s.ctx, entry.ID, "a")

	s.Require().NoError(s.registry.RemoveMember(s.ctx, entry.ID, "a"))
	s.Require().NoError(s.registry.RemoveMember(s.ctx, entry.ID, "a"))

	got, _ := s.registry.GetEntry(s.ctx, entry.ID, "host")
	s.Equal([]model.AuthID{"host"}, got.Members)

	// removed members lose access to member data
	outside, _ := s.registry.GetEntry(s.ctx, entry.ID, "a")
	_, hasCode := outside.Data[DataKeyJoinCode]
	s.False(hasCode)
}

func (s *RegistrySuite) TestEntryExpiresWithoutHeartbeat() {
	entry := s.create()

	s.elapse(31 * time.Second)

	_, err := s.registry.GetEntry(s.ctx, entry.ID, "host")
	s.ErrorIs(err, model.ErrEntryNotFound)
	s.ErrorIs(s.registry.Heartbeat(s.ctx, entry.ID), model.ErrEntryNotFound)

	list, err := s.registry.ListEntries(s.ctx, "")
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *RegistrySuite) TestHeartbeatKeepsEntryAlive() {
	entry := s.create()

	for i := 0; i < 4; i++ {
		s.elapse(15 * time.Second)
		s.Require().NoError(s.registry.Heartbeat(s.ctx, entry.ID))
	}

	got, err := s.registry.GetEntry(s.ctx, entry.ID, "host")
	s.Require().NoError(err)
	s.Equal(s.clock.Now().Unix(), got.LastHeartbeat.Unix())
	s.Equal([]model.AuthID{"host"}, got.Members)
}

func (s *RegistrySuite) TestDeleteEntry() {
	entry := s.create()

	s.Require().NoError(s.registry.DeleteEntry(s.ctx, entry.ID))
	s.ErrorIs(s.registry.DeleteEntry(s.ctx, entry.ID), model.ErrEntryNotFound)

	_, err := s.registry.GetEntry(s.ctx, entry.ID, "host")
	s.ErrorIs(err, model.ErrEntryNotFound)
}

func (s *RegistrySuite) TestListEntriesOldestFirst() {
	first := s.create()
	s.elapse(time.Second)
	second, _ := s.registry.CreateEntry(s.ctx, "other", "other's Lobby", 4, nil)

	list, err := s.registry.ListEntries(s.ctx, "viewer")
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(first.ID, list[0].ID)
	s.Equal(second.ID, list[1].ID)
	_, hasCode := list[0].Data[DataKeyJoinCode]
	s.False(hasCode)
}
