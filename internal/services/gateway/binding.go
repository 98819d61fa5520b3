package gateway

import (
	"sort"
	"sync"

	"github.com/mcoot/tagmatch/internal/model"
)

// Bindings maps live connections to the identities they presented.
// At most one binding exists per connection and per auth id.
type Bindings struct {
	mu           sync.RWMutex
	byConnection map[model.ConnectionID]model.UserIdentity
	byAuthID     map[model.AuthID]model.ConnectionID
}

// NewBindings creates an empty binding table
func NewBindings() *Bindings {
	return &Bindings{
		byConnection: make(map[model.ConnectionID]model.UserIdentity),
		byAuthID:     make(map[model.AuthID]model.ConnectionID),
	}
}

// Bind records the identity for a connection.
// An auth id or connection id that is already bound is rejected, never replaced.
func (b *Bindings) Bind(connID model.ConnectionID, identity model.UserIdentity) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.byAuthID[identity.AuthID]; exists {
		return &model.RejectionError{Reason: model.DenyDuplicateIdentity}
	}
	if _, exists := b.byConnection[connID]; exists {
		return &model.RejectionError{Reason: model.DenyDuplicateIdentity}
	}

	b.byConnection[connID] = identity
	b.byAuthID[identity.AuthID] = connID
	return nil
}

// Unbind removes the binding for a connection and returns the identity it held
func (b *Bindings) Unbind(connID model.ConnectionID) (model.UserIdentity, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	identity, ok := b.byConnection[connID]
	if !ok {
		return model.UserIdentity{}, false
	}
	delete(b.byConnection, connID)
	delete(b.byAuthID, identity.AuthID)
	return identity, true
}

// Lookup returns the identity bound to a connection
func (b *Bindings) Lookup(connID model.ConnectionID) (model.UserIdentity, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	identity, ok := b.byConnection[connID]
	return identity, ok
}

// ConnectionFor returns the connection bound to an auth id
func (b *Bindings) ConnectionFor(authID model.AuthID) (model.ConnectionID, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	connID, ok := b.byAuthID[authID]
	return connID, ok
}

// ConnectionIDs returns all bound connection ids in ascending order
func (b *Bindings) ConnectionIDs() []model.ConnectionID {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]model.ConnectionID, 0, len(b.byConnection))
	for id := range b.byConnection {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of bindings
func (b *Bindings) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byConnection)
}

// Clear drops every binding and returns what was removed
func (b *Bindings) Clear() map[model.ConnectionID]model.UserIdentity {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := b.byConnection
	b.byConnection = make(map[model.ConnectionID]model.UserIdentity)
	b.byAuthID = make(map[model.AuthID]model.ConnectionID)
	return removed
}
