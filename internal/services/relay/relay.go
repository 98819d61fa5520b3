package relay

import (
	"context"
	"time"
)

const (
	// JoinCodeLength is the length of generated join codes
	JoinCodeLength = 6
	// JoinCodeAlphabet avoids easily confused characters
	JoinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Allocation is a reserved relay path for one hosted match
type Allocation struct {
	ID             string    `json:"allocation_id"`
	JoinCode       string    `json:"join_code,omitempty"`
	MaxConnections int       `json:"max_connections"`
	Endpoint       string    `json:"endpoint"`
	CreatedAt      time.Time `json:"created_at"`
}

// Service is the relay allocation collaborator.
// Hosts create allocations and request join codes; clients join by code.
type Service interface {
	CreateAllocation(ctx context.Context, maxConnections int) (*Allocation, error)
	GetJoinCode(ctx context.Context, allocationID string) (string, error)
	JoinAllocation(ctx context.Context, joinCode string) (*Allocation, error)
	ReleaseAllocation(ctx context.Context, allocationID string) error
}
