package seal

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ocx/trustcore/internal/core"
	"github.com/ocx/trustcore/internal/identity"
	"github.com/ocx/trustcore/internal/score"
)

// Issuer composes identity, current score, and revocation status into a
// permission tier and issues signed trust seals.
type Issuer struct {
	identities identity.Store
	scores     *score.Engine
	signer     *Signer
	clock      core.Clock
	ttl        time.Duration
	logger     *log.Logger
}

// NewIssuer builds a seal issuer. ttl bounds seal lifetime (default 15m).
func NewIssuer(identities identity.Store, scores *score.Engine, signer *Signer, clock core.Clock, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Issuer{
		identities: identities,
		scores:     scores,
		signer:     signer,
		clock:      clock,
		ttl:        ttl,
		logger:     log.New(log.Writer(), "[SealIssuer] ", log.LstdFlags),
	}
}

// Issue resolves the agent's live state and returns a signed seal.
//
// Revoked agents never receive a seal, regardless of score. Quarantined
// agents receive a seal pinned to TierUntrusted — quarantine always
// overrides the score-derived tier.
func (i *Issuer) Issue(ctx context.Context, id core.AgentID) (*TrustSeal, error) {
	agent, err := i.identities.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if agent.Status == identity.StatusRevoked {
		return nil, fmt.Errorf("seal issuance for %s: %w", id, core.ErrAgentRevoked)
	}

	current, err := i.scores.Current(ctx, id)
	if err != nil {
		return nil, err
	}

	tier := TierForScore(current.Overall)
	if agent.Status == identity.StatusQuarantined {
		tier = TierUntrusted
	}

	now := i.clock.Now()
	s := &TrustSeal{
		SealID:        uuid.NewString(),
		AgentID:       id,
		Tier:          tier,
		ScoreSnapshot: current,
		IssuedAt:      now,
		ExpiresAt:     now.Add(i.ttl),
	}
	s.IssuerSignature = i.signer.Sign(s.SigningBytes())

	i.logger.Printf("Issued seal %s for %s: tier=%s overall=%.2f", s.SealID, id, tier, current.Overall)
	return s, nil
}

// Validate checks the seal's signature and expiry against the seal's own
// fields, then recomputes the authorization tier from live state. The
// embedded snapshot is never trusted for authorization: a captured,
// still-signature-valid seal must not grant access after a subsequent
// quarantine, revocation, or score drop.
func (i *Issuer) Validate(ctx context.Context, s *TrustSeal) (Tier, error) {
	if s == nil || s.ScoreSnapshot == nil {
		return TierUntrusted, fmt.Errorf("seal validation: %w", core.ErrInvalidSignature)
	}
	if !i.signer.Verify(s.SigningBytes(), s.IssuerSignature) {
		return TierUntrusted, fmt.Errorf("seal %s: %w", s.SealID, core.ErrInvalidSignature)
	}
	if i.clock.Now().After(s.ExpiresAt) {
		return TierUntrusted, fmt.Errorf("seal %s: %w", s.SealID, core.ErrSealExpired)
	}

	agent, err := i.identities.Get(ctx, s.AgentID)
	if err != nil {
		return TierUntrusted, err
	}
	if agent.Status == identity.StatusRevoked {
		return TierUntrusted, fmt.Errorf("seal %s: %w", s.SealID, core.ErrAgentRevoked)
	}

	current, err := i.scores.Current(ctx, s.AgentID)
	if err != nil {
		return TierUntrusted, err
	}

	tier := TierForScore(current.Overall)
	if agent.Status == identity.StatusQuarantined {
		tier = TierUntrusted
	}
	return tier, nil
}

// IssuerPublicKeyPEM exposes the issuer verification key for relying parties.
func (i *Issuer) IssuerPublicKeyPEM() (string, error) {
	return i.signer.EncodePublicKeyPEM()
}
