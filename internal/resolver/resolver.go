// Package resolver integrates external identity registries. The engine
// treats resolver results as eventually-consistent hints: signatures are
// always re-verified locally regardless of how much the transport is
// trusted.
package resolver

import (
	"context"

	"github.com/ocx/trustcore/internal/core"
	"github.com/ocx/trustcore/internal/identity"
)

// Resolver looks identities up in, and publishes them to, an external
// registry (a federated peer, a shared database). Implementations must
// surface deadline overruns as core.ErrResolutionTimeout — never as
// core.ErrUnknownAgent, which means the registry answered and the identity
// does not exist.
type Resolver interface {
	Resolve(ctx context.Context, id core.AgentID) (*identity.AgentIdentity, error)
	Publish(ctx context.Context, agent *identity.AgentIdentity) error
}
