package replication

import (
	"errors"
	"sync"

	"github.com/mcoot/tagmatch/internal/model"
)

var (
	ErrKeyExists   = errors.New("item with key already exists")
	ErrKeyNotFound = errors.New("item with key not found")
)

// ChangeType discriminates structural list changes
type ChangeType string

const (
	ChangeAdd    ChangeType = "add"
	ChangeRemove ChangeType = "remove"
	ChangeUpdate ChangeType = "update"
)

// Change describes one mutation of a List.
// Index is the position in insertion order at the time of the change.
type Change[K comparable, T any] struct {
	Type  ChangeType
	Key   K
	Index int
	Value T
}

// List is a replicated, insertion-ordered collection keyed by K.
// Every mutation emits a Change so observers can maintain derived views
// incrementally.
type List[K comparable, T any] struct {
	role Role
	key  func(T) K

	notifyMu sync.Mutex

	mu        sync.RWMutex
	items     []T
	callbacks map[uint64]func(Change[K, T])
	order     []uint64
	nextID    uint64
}

// NewList creates an empty List that identifies items with key
func NewList[K comparable, T any](role Role, key func(T) K) *List[K, T] {
	return &List[K, T]{
		role:      role,
		key:       key,
		callbacks: make(map[uint64]func(Change[K, T])),
	}
}

// Role returns the holder's role
func (l *List[K, T]) Role() Role {
	return l.role
}

// Len returns the number of items
func (l *List[K, T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Items returns a copy of the items in insertion order
func (l *List[K, T]) Items() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

// Get returns the item with the given key
func (l *List[K, T]) Get(key K) (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i := l.indexLocked(key); i >= 0 {
		return l.items[i], true
	}
	var zero T
	return zero, false
}

// Contains returns true if an item with the key is present
func (l *List[K, T]) Contains(key K) bool {
	_, ok := l.Get(key)
	return ok
}

// Add inserts a new item. Fails if the key is already present.
func (l *List[K, T]) Add(item T) error {
	if !l.role.IsAuthority() {
		return model.ErrNotAuthority
	}
	if l.Contains(l.key(item)) {
		return ErrKeyExists
	}
	l.upsert(item)
	return nil
}

// Update replaces an existing item. Fails if the key is absent.
func (l *List[K, T]) Update(item T) error {
	if !l.role.IsAuthority() {
		return model.ErrNotAuthority
	}
	if !l.Contains(l.key(item)) {
		return ErrKeyNotFound
	}
	l.upsert(item)
	return nil
}

// Upsert inserts the item or replaces the existing item with the same key
func (l *List[K, T]) Upsert(item T) (ChangeType, error) {
	if !l.role.IsAuthority() {
		return "", model.ErrNotAuthority
	}
	return l.upsert(item), nil
}

// Remove deletes the item with the key. Returns false if it was absent.
func (l *List[K, T]) Remove(key K) (bool, error) {
	if !l.role.IsAuthority() {
		return false, model.ErrNotAuthority
	}
	return l.remove(key), nil
}

// RemoveIf deletes every item matching pred and returns how many were removed
func (l *List[K, T]) RemoveIf(pred func(T) bool) (int, error) {
	if !l.role.IsAuthority() {
		return 0, model.ErrNotAuthority
	}
	var doomed []K
	for _, item := range l.Items() {
		if pred(item) {
			doomed = append(doomed, l.key(item))
		}
	}
	removed := 0
	for _, k := range doomed {
		if l.remove(k) {
			removed++
		}
	}
	return removed, nil
}

// Apply mirrors a change received from the authority
func (l *List[K, T]) Apply(change Change[K, T]) {
	switch change.Type {
	case ChangeAdd, ChangeUpdate:
		l.upsert(change.Value)
	case ChangeRemove:
		l.remove(change.Key)
	}
}

// OnChange registers a callback and returns a function that removes it
func (l *List[K, T]) OnChange(cb func(Change[K, T])) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	id := l.nextID
	l.callbacks[id] = cb
	l.order = append(l.order, id)

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, ok := l.callbacks[id]; !ok {
			return
		}
		delete(l.callbacks, id)
		for i, existing := range l.order {
			if existing == id {
				l.order = append(l.order[:i:i], l.order[i+1:]...)
				break
			}
		}
	}
}

func (l *List[K, T]) upsert(item T) ChangeType {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	k := l.key(item)

	l.mu.Lock()
	var change Change[K, T]
	if i := l.indexLocked(k); i >= 0 {
		l.items[i] = item
		change = Change[K, T]{Type: ChangeUpdate, Key: k, Index: i, Value: item}
	} else {
		l.items = append(l.items, item)
		change = Change[K, T]{Type: ChangeAdd, Key: k, Index: len(l.items) - 1, Value: item}
	}
	callbacks := l.snapshotCallbacksLocked()
	l.mu.Unlock()

	for _, cb := range callbacks {
		cb(change)
	}
	return change.Type
}

func (l *List[K, T]) remove(key K) bool {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	i := l.indexLocked(key)
	if i < 0 {
		l.mu.Unlock()
		return false
	}
	item := l.items[i]
	l.items = append(l.items[:i:i], l.items[i+1:]...)
	change := Change[K, T]{Type: ChangeRemove, Key: key, Index: i, Value: item}
	callbacks := l.snapshotCallbacksLocked()
	l.mu.Unlock()

	for _, cb := range callbacks {
		cb(change)
	}
	return true
}

func (l *List[K, T]) indexLocked(key K) int {
	for i, item := range l.items {
		if l.key(item) == key {
			return i
		}
	}
	return -1
}

func (l *List[K, T]) snapshotCallbacksLocked() []func(Change[K, T]) {
	out := make([]func(Change[K, T]), 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.callbacks[id])
	}
	return out
}
