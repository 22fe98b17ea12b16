package identity

import (
	"context"

	"github.com/ocx/trustcore/internal/core"
)

// Store defines the interface for any identity backend (memory, Redis,
// Postgres). Get returns core.ErrUnknownAgent for absent identities — never
// a nil identity with nil error.
type Store interface {
	// Put creates or replaces an identity record.
	Put(ctx context.Context, agent *AgentIdentity) error

	// Get returns a copy of the identity, or core.ErrUnknownAgent.
	Get(ctx context.Context, id core.AgentID) (*AgentIdentity, error)

	// SetStatus updates the lifecycle status. Only the revocation registry
	// may call this; everything else treats status as read-only.
	SetStatus(ctx context.Context, id core.AgentID, status AgentStatus) error

	// List returns all known agent IDs, in unspecified order.
	List(ctx context.Context) ([]core.AgentID, error)

	Close() error
}
