package matchtimer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/tagmatch/internal/dependencies/mocks"
	"github.com/mcoot/tagmatch/internal/events"
	"github.com/mcoot/tagmatch/internal/model"
	"github.com/mcoot/tagmatch/internal/replication"
	"github.com/mcoot/tagmatch/internal/testutil"
)

type TimerSuite struct {
	suite.Suite
	bus      *events.Bus
	recorder *testutil.EventRecorder
	clock    *mocks.MockClock
	timer    *Timer
}

func TestTimerSuite(t *testing.T) {
	suite.Run(t, new(TimerSuite))
}

func (s *TimerSuite) SetupTest() {
	logger := testutil.NopLogger()
	s.bus = events.NewBus(logger)
	s.recorder = &testutil.EventRecorder{}
	s.bus.Subscribe(s.recorder.Record)
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.timer = New(DefaultConfig(), replication.RoleAuthority, s.clock, s.bus, logger)
}

func (s *TimerSuite) TearDownTest() {
	s.timer.StopTicking()
}

func (s *TimerSuite) TestStoppedBeforeStart() {
	status := s.timer.Tick()
	s.Equal(model.PhaseStopped, status.Phase)
	s.Equal("0:00", status.Display)
	s.Empty(s.recorder.Events())
}

func (s *TimerSuite) TestStartSetsEndTime() {
	start := s.clock.Now()
	s.Require().NoError(s.timer.Start())

	state := s.timer.State()
	s.True(state.IsRunning)
	s.Equal(start.Add(123*time.Second), state.EndTime)
	s.Equal(1, s.recorder.Count(model.EventTimerChanged))
}

func (s *TimerSuite) TestStartWhileRunningFails() {
	s.Require().NoError(s.timer.Start())
	s.ErrorIs(s.timer.Start(), model.ErrTimerRunning)
}

func (s *TimerSuite) TestObserverCannotStart() {
	observer := New(DefaultConfig(), replication.RoleObserver, s.clock, s.bus, testutil.NopLogger())
	s.ErrorIs(observer.Start(), model.ErrNotAuthority)
}

func (s *TimerSuite) TestCountdownPhase() {
	s.Require().NoError(s.timer.Start())

	s.clock.Advance(2 * time.Second)
	status := s.timer.Tick()

	s.Equal(model.PhaseCountdown, status.Phase)
	s.Equal(121*time.Second, status.Remaining)
	s.Equal(1, status.CountdownSeconds)
	s.Equal("1", status.Display)
}

func (s *TimerSuite) TestCountdownBeganFiresOncePerStart() {
	s.Require().NoError(s.timer.Start())

	for i := 0; i < 25; i++ {
		s.timer.Tick()
		s.clock.Advance(100 * time.Millisecond)
	}

	s.Equal(1, s.recorder.Count(model.EventCountdownBegan))
}

func (s *TimerSuite) TestRunningPhaseAndDisplay() {
	s.Require().NoError(s.timer.Start())
	s.timer.Tick()

	s.clock.Advance(3 * time.Second)
	status := s.timer.Tick()
	s.Equal(model.PhaseRunning, status.Phase)
	s.Equal("2:00", status.Display)

	s.clock.Advance(55500 * time.Millisecond)
	status = s.timer.Tick()
	s.Equal("1:05", status.Display)

	s.Equal(1, s.recorder.Count(model.EventMatchStarted))
}

func (s *TimerSuite) TestMatchEndsOnceAndClearsRunning() {
	s.Require().NoError(s.timer.Start())
	s.timer.Tick()

	s.clock.Advance(123 * time.Second)
	status := s.timer.Tick()
	s.Equal(model.PhaseStopped, status.Phase)
	s.False(s.timer.State().IsRunning)

	s.clock.Advance(time.Second)
	s.timer.Tick()
	s.timer.Tick()

	s.Equal(1, s.recorder.Count(model.EventMatchEnded))
}

func (s *TimerSuite) TestPhaseChangesPublished() {
	s.Require().NoError(s.timer.Start())
	s.timer.Tick()
	s.clock.Advance(3 * time.Second)
	s.timer.Tick()
	s.clock.Advance(120 * time.Second)
	s.timer.Tick()

	changes := s.recorder.OfType(model.EventPhaseChanged)
	s.Require().Len(changes, 3)
	var phases []model.MatchPhase
	for _, c := range changes {
		phases = append(phases, c.Payload.(model.PhaseChangedPayload).Current)
	}
	s.Equal([]model.MatchPhase{model.PhaseCountdown, model.PhaseRunning, model.PhaseStopped}, phases)
}

func (s *TimerSuite) TestRestartResetsSignals() {
	s.Require().NoError(s.timer.Start())
	s.timer.Tick()
	s.clock.Advance(123 * time.Second)
	s.timer.Tick()

	s.Require().NoError(s.timer.Start())
	s.timer.Tick()
	s.clock.Advance(123 * time.Second)
	s.timer.Tick()

	s.Equal(2, s.recorder.Count(model.EventCountdownBegan))
	s.Equal(2, s.recorder.Count(model.EventMatchEnded))
}

func (s *TimerSuite) TestObserverMirrorsAuthority() {
	observerBus := events.NewBus(testutil.NopLogger())
	observerEvents := &testutil.EventRecorder{}
	observerBus.Subscribe(observerEvents.Record)
	observer := New(DefaultConfig(), replication.RoleObserver, s.clock, observerBus, testutil.NopLogger())

	s.bus.Subscribe(func(e model.Event) {
		observer.Apply(e.Payload.(model.TimerChangedPayload).State)
	}, model.EventTimerChanged)

	s.Require().NoError(s.timer.Start())
	s.clock.Advance(time.Second)
	s.Equal(model.PhaseCountdown, observer.Tick().Phase)
	s.Equal(1, observerEvents.Count(model.EventCountdownBegan))

	// observer never ticks past zero itself but sees running fall
	s.clock.Advance(122 * time.Second)
	s.timer.Tick()
	s.False(observer.State().IsRunning)

	observer.Tick()
	observer.Tick()
	s.Equal(1, observerEvents.Count(model.EventMatchEnded))
}

func (s *TimerSuite) TestRestartWhileTickingKeepsOneEndPerRun() {
	for i := 0; i < 200; i++ {
		bus := events.NewBus(testutil.NopLogger())
		recorder := &testutil.EventRecorder{}
		bus.Subscribe(recorder.Record)
		timer := New(DefaultConfig(), replication.RoleAuthority, s.clock, bus, testutil.NopLogger())

		s.Require().NoError(timer.Start())
		s.clock.Advance(123 * time.Second)
		timer.Tick()
		s.Require().Equal(1, recorder.Count(model.EventMatchEnded))

		stop := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					timer.Tick()
				}
			}
		}()

		s.Require().NoError(timer.Start())
		close(stop)
		wg.Wait()
		timer.Tick()

		s.Equal(1, recorder.Count(model.EventMatchEnded), "iteration %d ended early", i)
		s.Equal(1, recorder.Count(model.EventCountdownBegan), "iteration %d", i)

		s.clock.Advance(123 * time.Second)
		timer.Tick()
		s.Equal(2, recorder.Count(model.EventMatchEnded), "iteration %d missed the real end", i)
		bus.Close()
	}
}

func (s *TimerSuite) TestConcurrentStartsOnlyOneSucceeds() {
	var started atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.timer.Start() == nil {
				started.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), started.Load())
	s.Equal(1, s.recorder.Count(model.EventTimerChanged))
}
