package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/tagmatch/internal/model"
	"github.com/mcoot/tagmatch/internal/testutil"
)

func TestPublishDeliversInOrder(t *testing.T) {
	bus := NewBus(testutil.NopLogger())

	var got []model.EventType
	bus.Subscribe(func(e model.Event) { got = append(got, e.Type) })

	bus.Publish(model.Event{Type: model.EventCountdownBegan})
	bus.Publish(model.Event{Type: model.EventMatchStarted})
	bus.Publish(model.Event{Type: model.EventMatchEnded})

	assert.Equal(t, []model.EventType{
		model.EventCountdownBegan,
		model.EventMatchStarted,
		model.EventMatchEnded,
	}, got)
}

func TestSubscribeFiltersByType(t *testing.T) {
	bus := NewBus(testutil.NopLogger())

	count := 0
	bus.Subscribe(func(model.Event) { count++ }, model.EventParticipantLeft)

	bus.Publish(model.Event{Type: model.EventParticipantJoined})
	bus.Publish(model.Event{Type: model.EventParticipantLeft})

	assert.Equal(t, 1, count)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	bus := NewBus(testutil.NopLogger())

	count := 0
	unsubscribe := bus.Subscribe(func(model.Event) { count++ })
	bus.Publish(model.Event{Type: model.EventMatchEnded})

	unsubscribe()
	unsubscribe()
	bus.Publish(model.Event{Type: model.EventMatchEnded})

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestCloseDropsHandlers(t *testing.T) {
	bus := NewBus(testutil.NopLogger())

	count := 0
	bus.Subscribe(func(model.Event) { count++ })
	bus.Close()
	bus.Close()

	bus.Publish(model.Event{Type: model.EventMatchEnded})
	assert.Equal(t, 0, count)

	// Subscribing after close is a harmless no-op
	unsubscribe := bus.Subscribe(func(model.Event) { count++ })
	unsubscribe()
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestPanickingHandlerDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(testutil.NopLogger())

	delivered := false
	bus.Subscribe(func(model.Event) { panic("boom") })
	bus.Subscribe(func(model.Event) { delivered = true })

	require.NotPanics(t, func() {
		bus.Publish(model.Event{Type: model.EventMatchEnded})
	})
	assert.True(t, delivered)
}

func TestHandlerMayUnsubscribeDuringDelivery(t *testing.T) {
	bus := NewBus(testutil.NopLogger())

	var unsubscribe func()
	count := 0
	unsubscribe = bus.Subscribe(func(model.Event) {
		count++
		unsubscribe()
	})

	bus.Publish(model.Event{Type: model.EventMatchEnded})
	bus.Publish(model.Event{Type: model.EventMatchEnded})
	assert.Equal(t, 1, count)
}

func TestConcurrentPublish(t *testing.T) {
	bus := NewBus(testutil.NopLogger())

	var mu sync.Mutex
	count := 0
	bus.Subscribe(func(model.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(model.Event{Type: model.EventTaggedTimeChanged})
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, count)
}
