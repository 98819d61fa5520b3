// Package replication holds state that only the authority may write and
// every role may read, with change notifications for observers.
package replication

// Role decides whether a holder may write replicated state
type Role int

const (
	// RoleObserver mirrors state pushed by the authority
	RoleObserver Role = iota
	// RoleAuthority is the single writer of replicated state
	RoleAuthority
)

func (r Role) String() string {
	if r == RoleAuthority {
		return "authority"
	}
	return "observer"
}

// IsAuthority returns true for the authority role
func (r Role) IsAuthority() bool {
	return r == RoleAuthority
}
