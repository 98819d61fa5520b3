package replication

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/tagmatch/internal/model"
)

func TestValueAuthorityWriteNotifies(t *testing.T) {
	v := NewValue(model.TagStatusNone, RoleAuthority)

	var changes [][2]model.TagStatus
	v.OnChange(func(prev, cur model.TagStatus) {
		changes = append(changes, [2]model.TagStatus{prev, cur})
	})

	require.NoError(t, v.Set(model.TagStatusTaggable))
	require.NoError(t, v.Set(model.TagStatusTagged))

	assert.Equal(t, model.TagStatusTagged, v.Get())
	assert.Equal(t, [][2]model.TagStatus{
		{model.TagStatusNone, model.TagStatusTaggable},
		{model.TagStatusTaggable, model.TagStatusTagged},
	}, changes)
}

func TestValueSameValueWriteIsSilent(t *testing.T) {
	v := NewValue(model.TagStatusTagged, RoleAuthority)

	count := 0
	v.OnChange(func(_, _ model.TagStatus) { count++ })

	require.NoError(t, v.Set(model.TagStatusTagged))
	assert.Equal(t, 0, count)
}

func TestValueObserverCannotSet(t *testing.T) {
	v := NewValue(false, RoleObserver)

	err := v.Set(true)
	assert.ErrorIs(t, err, model.ErrNotAuthority)
	assert.False(t, v.Get())
}

func TestValueObserverApplyNotifies(t *testing.T) {
	v := NewValue(0.0, RoleObserver)

	var got []float64
	v.OnChange(func(_, cur float64) { got = append(got, cur) })

	v.Apply(1.5)
	v.Apply(2.5)
	assert.Equal(t, []float64{1.5, 2.5}, got)
}

func TestValueUnsubscribe(t *testing.T) {
	v := NewValue(0, RoleAuthority)

	count := 0
	unsubscribe := v.OnChange(func(_, _ int) { count++ })
	require.NoError(t, v.Set(1))
	unsubscribe()
	unsubscribe()
	require.NoError(t, v.Set(2))

	assert.Equal(t, 1, count)
}

func TestValueCallbackMayReadValue(t *testing.T) {
	v := NewValue(0, RoleAuthority)

	var seen int
	v.OnChange(func(_, _ int) { seen = v.Get() })
	require.NoError(t, v.Set(7))

	assert.Equal(t, 7, seen)
}

func TestValueConcurrentWritesAreObservedInWriteOrder(t *testing.T) {
	v := NewValue(0, RoleAuthority)

	var mu sync.Mutex
	var seen []int
	v.OnChange(func(_, cur int) {
		mu.Lock()
		seen = append(seen, cur)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = v.Set(n)
		}(i)
	}
	wg.Wait()

	// Last write wins and is the last notification observers saw
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, v.Get(), seen[len(seen)-1])
}
