package replication

import (
	"sync"

	"github.com/mcoot/tagmatch/internal/model"
)

// ChangeFunc is called with the previous and current value after a write
type ChangeFunc[T any] func(prev, cur T)

// Value is a single replicated field.
// Callbacks fire only when a write changes the value, and always in write order.
// A callback must not write the same Value.
type Value[T comparable] struct {
	role Role

	// notifyMu serializes write+notify so observers never see writes reordered
	notifyMu sync.Mutex

	mu        sync.RWMutex
	value     T
	callbacks map[uint64]ChangeFunc[T]
	order     []uint64
	nextID    uint64
}

// NewValue creates a Value holding initial
func NewValue[T comparable](initial T, role Role) *Value[T] {
	return &Value[T]{
		role:      role,
		value:     initial,
		callbacks: make(map[uint64]ChangeFunc[T]),
	}
}

// Role returns the holder's role
func (v *Value[T]) Role() Role {
	return v.role
}

// Get returns the current value
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Set writes a new value. Only the authority may write.
func (v *Value[T]) Set(val T) error {
	if !v.role.IsAuthority() {
		return model.ErrNotAuthority
	}
	v.write(val)
	return nil
}

// Apply mirrors a value received from the authority
func (v *Value[T]) Apply(val T) {
	v.write(val)
}

func (v *Value[T]) write(val T) {
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()

	v.mu.Lock()
	prev := v.value
	if prev == val {
		v.mu.Unlock()
		return
	}
	v.value = val
	callbacks := v.snapshotCallbacksLocked()
	v.mu.Unlock()

	for _, cb := range callbacks {
		cb(prev, val)
	}
}

// OnChange registers a callback and returns a function that removes it
func (v *Value[T]) OnChange(cb ChangeFunc[T]) func() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.nextID++
	id := v.nextID
	v.callbacks[id] = cb
	v.order = append(v.order, id)

	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if _, ok := v.callbacks[id]; !ok {
			return
		}
		delete(v.callbacks, id)
		for i, existing := range v.order {
			if existing == id {
				v.order = append(v.order[:i:i], v.order[i+1:]...)
				break
			}
		}
	}
}

func (v *Value[T]) snapshotCallbacksLocked() []ChangeFunc[T] {
	out := make([]ChangeFunc[T], 0, len(v.order))
	for _, id := range v.order {
		out = append(out, v.callbacks[id])
	}
	return out
}
