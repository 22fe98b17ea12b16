// Package engine is the composition root of the trust system. It wires the
// identity store, score engine, trust graph, revocation registry, and seal
// issuer behind one façade and fans lifecycle changes out to the event bus
// and webhook dispatcher.
package engine

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ocx/trustcore/internal/audit"
	"github.com/ocx/trustcore/internal/core"
	"github.com/ocx/trustcore/internal/events"
	"github.com/ocx/trustcore/internal/graph"
	"github.com/ocx/trustcore/internal/identity"
	"github.com/ocx/trustcore/internal/metrics"
	"github.com/ocx/trustcore/internal/resolver"
	"github.com/ocx/trustcore/internal/revocation"
	"github.com/ocx/trustcore/internal/score"
	"github.com/ocx/trustcore/internal/seal"
	"github.com/ocx/trustcore/internal/webhooks"
	"github.com/ocx/trustcore/internal/zkproof"
)

const eventSource = "/v1/agents"

// Config holds façade-level tunables not owned by a subsystem.
type Config struct {
	// MaxHops bounds trust path searches (default 6).
	MaxHops int

	// MinEdgeStrength is the traversal threshold for path searches.
	MinEdgeStrength float64
}

// DefaultConfig returns the canonical façade configuration.
func DefaultConfig() Config {
	return Config{
		MaxHops:         graph.DefaultMaxHops,
		MinEdgeStrength: graph.DefaultMinEdgeStrength,
	}
}

// TrustEngine composes the subsystems into the public trust API.
type TrustEngine struct {
	cfg        Config
	identities identity.Store
	verifier   *identity.Verifier
	scores     *score.Engine
	graph      *graph.TrustGraph
	registry   *revocation.Registry
	issuer     *seal.Issuer
	auditLog   *audit.MerkleLog
	clock      core.Clock
	logger     *log.Logger

	// Optional collaborators. Nil-safe: a missing bus, dispatcher, resolver
	// or metrics set disables that concern only.
	bus      events.Emitter
	hooks    webhooks.Emitter
	resolver resolver.Resolver
	attestor identity.Attestor
	proofs   zkproof.Service
	metrics  *metrics.Metrics
}

// Options carries the optional collaborators for NewTrustEngine.
type Options struct {
	Bus      events.Emitter
	Hooks    webhooks.Emitter
	Resolver resolver.Resolver
	Attestor identity.Attestor
	Proofs   zkproof.Service
	Metrics  *metrics.Metrics
}

// NewTrustEngine wires the subsystems together and installs the transition
// hook that fans revocation state changes out to the bus and webhooks.
func NewTrustEngine(
	cfg Config,
	identities identity.Store,
	scores *score.Engine,
	trustGraph *graph.TrustGraph,
	registry *revocation.Registry,
	issuer *seal.Issuer,
	auditLog *audit.MerkleLog,
	clock core.Clock,
	opts Options,
) *TrustEngine {
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = graph.DefaultMaxHops
	}
	if cfg.MinEdgeStrength == 0 {
		cfg.MinEdgeStrength = graph.DefaultMinEdgeStrength
	}

	e := &TrustEngine{
		cfg:        cfg,
		identities: identities,
		verifier:   identity.NewVerifier(),
		scores:     scores,
		graph:      trustGraph,
		registry:   registry,
		issuer:     issuer,
		auditLog:   auditLog,
		clock:      clock,
		logger:     log.New(log.Writer(), "[TrustEngine] ", log.LstdFlags),
		bus:        opts.Bus,
		hooks:      opts.Hooks,
		resolver:   opts.Resolver,
		attestor:   opts.Attestor,
		proofs:     opts.Proofs,
		metrics:    opts.Metrics,
	}

	registry.OnTransition = e.onTransition
	return e
}

// RegisterAgent creates a new identity with the given Ed25519 public key,
// seeds its baseline score, and announces it. Publishing to the external
// registry is best-effort and never blocks registration.
func (e *TrustEngine) RegisterAgent(ctx context.Context, id core.AgentID, publicKey ed25519.PublicKey) (*identity.AgentIdentity, error) {
	if _, err := core.ParseAgentID(string(id)); err != nil {
		return nil, err
	}

	if e.attestor != nil {
		if _, err := e.attestor.Attest(ctx, id); err != nil {
			return nil, fmt.Errorf("workload attestation for %s: %w", id, err)
		}
	}

	agent, err := identity.New(id, publicKey, e.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := e.identities.Put(ctx, agent); err != nil {
		return nil, err
	}
	if err := e.scores.Register(ctx, id); err != nil {
		return nil, err
	}

	if e.resolver != nil {
		if err := e.resolver.Publish(ctx, agent); err != nil {
			e.logger.Printf("Registry publish failed for %s: %v", id, err)
		}
	}

	e.emit(events.TypeAgentRegistered, webhooks.EventAgentRegistered, id, map[string]interface{}{
		"agent_id":   string(id),
		"created_at": agent.CreatedAt.Format(time.RFC3339),
	})
	return agent, nil
}

// RotateKey retires the agent's current key into its key history and
// installs the new one. Historical signatures stay verifiable through the
// retired epochs.
func (e *TrustEngine) RotateKey(ctx context.Context, id core.AgentID, newKey ed25519.PublicKey) error {
	agent, err := e.identities.Get(ctx, id)
	if err != nil {
		return err
	}
	if agent.Status == identity.StatusRevoked {
		return fmt.Errorf("key rotation for %s: %w", id, core.ErrAgentRevoked)
	}
	if err := agent.RotateKey(newKey, e.clock.Now()); err != nil {
		return err
	}
	if err := e.identities.Put(ctx, agent); err != nil {
		return err
	}

	e.emit(events.TypeKeyRotated, webhooks.EventKeyRotated, id, map[string]interface{}{
		"agent_id":       string(id),
		"retired_epochs": len(agent.KeyHistory),
	})
	return nil
}

// GetAgent returns the identity from the local store, falling back to the
// external resolver for agents registered elsewhere in the federation.
func (e *TrustEngine) GetAgent(ctx context.Context, id core.AgentID) (*identity.AgentIdentity, error) {
	agent, err := e.identities.Get(ctx, id)
	if err == nil {
		return agent, nil
	}
	if !errors.Is(err, core.ErrUnknownAgent) || e.resolver == nil {
		return nil, err
	}
	return e.resolver.Resolve(ctx, id)
}

// VerifySignature checks a signature against the agent's current key and
// every retired epoch, so artifacts signed before a rotation stay
// verifiable. The outcome feeds the cryptographic score component. A failed
// verification is itself a trust signal and costs more than a success earns.
func (e *TrustEngine) VerifySignature(ctx context.Context, id core.AgentID, message, signature []byte) (bool, error) {
	agent, err := e.identities.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if agent.Status == identity.StatusRevoked {
		return false, fmt.Errorf("verification for %s: %w", id, core.ErrAgentRevoked)
	}

	valid := e.verifier.VerifyAnyEpoch(agent, message, signature)
	if e.metrics != nil {
		e.metrics.RecordSignatureCheck(valid)
	}
	if !valid {
		e.appendAudit(ctx, id, "signature_failed", "no key epoch verifies the signature")
	}

	if err := e.RecordEvent(ctx, id, score.CryptoVerification{Success: valid}); err != nil {
		return valid, err
	}
	if !valid {
		return false, fmt.Errorf("signature for %s: %w", id, core.ErrInvalidSignature)
	}
	return true, nil
}

// SubmitProof verifies an opaque zero-knowledge proof about the agent and
// feeds the outcome into the cryptographic score component, exactly like a
// signature check. The proof backend is optional; without one every
// submission is rejected outright.
func (e *TrustEngine) SubmitProof(ctx context.Context, id core.AgentID, proof zkproof.Proof, publicInputs []byte) (bool, error) {
	if e.proofs == nil {
		return false, fmt.Errorf("proof for %s: no proof service configured", id)
	}
	agent, err := e.identities.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if agent.Status == identity.StatusRevoked {
		return false, fmt.Errorf("proof for %s: %w", id, core.ErrAgentRevoked)
	}

	valid, err := e.proofs.Verify(ctx, proof, publicInputs)
	if err != nil {
		return false, err
	}
	if !valid {
		e.appendAudit(ctx, id, "proof_rejected", "zero-knowledge proof failed verification")
	}

	if err := e.RecordEvent(ctx, id, score.CryptoVerification{Success: valid}); err != nil {
		return valid, err
	}
	if !valid {
		return false, fmt.Errorf("proof for %s: %w", id, core.ErrInvalidSignature)
	}
	return true, nil
}

// RecordEvent applies a trust event to the agent's score and announces the
// new overall value.
func (e *TrustEngine) RecordEvent(ctx context.Context, id core.AgentID, ev score.Event) error {
	start := time.Now()
	if err := e.scores.RecordEvent(ctx, id, ev); err != nil {
		return err
	}

	current, err := e.scores.Current(ctx, id)
	if err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.ObserveScoreOp("record_event", time.Since(start).Seconds())
		e.metrics.RecordScoreEvent(string(id), ev.Kind(), current.Overall)
	}
	e.emit(events.TypeScoreUpdated, webhooks.EventScoreChanged, id, map[string]interface{}{
		"agent_id": string(id),
		"kind":     ev.Kind(),
		"overall":  current.Overall,
	})
	return nil
}

// CurrentScore returns the agent's decay-adjusted trust score.
func (e *TrustEngine) CurrentScore(ctx context.Context, id core.AgentID) (*score.TrustScore, error) {
	start := time.Now()
	current, err := e.scores.Current(ctx, id)
	if err == nil && e.metrics != nil {
		e.metrics.ObserveScoreOp("current", time.Since(start).Seconds())
	}
	return current, err
}

// AddEndorsement records a relationship edge between two known agents. A
// revoked endorser carries no authority and cannot add edges. Endorsement
// and dispute edges also feed the endorsee's social score component.
func (e *TrustEngine) AddEndorsement(ctx context.Context, from, to core.AgentID, t graph.RelationshipType, evidenceRefs []string) (*graph.Edge, error) {
	endorser, err := e.identities.Get(ctx, from)
	if err != nil {
		return nil, err
	}
	if endorser.Status == identity.StatusRevoked {
		return nil, fmt.Errorf("endorsement from %s: %w", from, core.ErrAgentRevoked)
	}
	if _, err := e.identities.Get(ctx, to); err != nil {
		return nil, err
	}

	edge := e.graph.AddEdge(from, to, t, evidenceRefs, e.clock.Now())
	if e.metrics != nil {
		e.metrics.GraphEdges.WithLabelValues(string(t)).Inc()
	}

	// Endorsements raise the endorsee's social component; disputes carry
	// negative strength and lower it. Collaboration and supervision edges are
	// path material only.
	if t == graph.Endorsement || t == graph.Dispute {
		if err := e.RecordEvent(ctx, to, score.PeerEndorsement{Strength: edge.Strength}); err != nil {
			return nil, err
		}
	}

	e.emit(events.TypeEndorsementAdded, webhooks.EventScoreChanged, to, map[string]interface{}{
		"from":     string(from),
		"to":       string(to),
		"type":     string(t),
		"strength": edge.Strength,
	})
	return edge, nil
}

// FindTrustPath searches for an endorsement chain between two agents within
// the configured hop bound. Returns nil when no chain exists.
func (e *TrustEngine) FindTrustPath(ctx context.Context, from, to core.AgentID) ([]core.AgentID, error) {
	if _, err := e.identities.Get(ctx, from); err != nil {
		return nil, err
	}
	if _, err := e.identities.Get(ctx, to); err != nil {
		return nil, err
	}

	start := time.Now()
	path := e.graph.FindTrustPath(from, to, e.cfg.MaxHops, e.cfg.MinEdgeStrength)
	if e.metrics != nil {
		e.metrics.RecordPathSearch(path != nil, time.Since(start).Seconds())
	}
	return path, nil
}

// TrustWeight returns the aggregate direct edge strength from → to.
func (e *TrustEngine) TrustWeight(from, to core.AgentID) float64 {
	return e.graph.TrustWeight(from, to)
}

// Quarantine suspends an agent pending review. Permanent severity revokes
// directly.
func (e *TrustEngine) Quarantine(ctx context.Context, id core.AgentID, reason revocation.Reason, severity revocation.Severity, actor string) error {
	return e.registry.Quarantine(ctx, id, reason, severity, actor)
}

// Revoke terminally withdraws trust from an agent.
func (e *TrustEngine) Revoke(ctx context.Context, id core.AgentID, reason revocation.Reason, issuedBy string) error {
	return e.registry.Revoke(ctx, id, reason, issuedBy)
}

// InitiateRecovery reverses a revocation after a complete recovery plan and
// returns the fresh private key for re-provisioning the agent.
func (e *TrustEngine) InitiateRecovery(ctx context.Context, id core.AgentID, plan revocation.RecoveryPlan, actor string) (ed25519.PrivateKey, error) {
	priv, err := e.registry.InitiateRecovery(ctx, id, plan, actor)
	if err != nil {
		return nil, err
	}
	e.emit(events.TypeRecoveryCompleted, webhooks.EventRecovered, id, map[string]interface{}{
		"agent_id": string(id),
	})
	return priv, nil
}

// RevocationRecord returns the record currently in effect, or nil.
func (e *TrustEngine) RevocationRecord(id core.AgentID) *revocation.Record {
	return e.registry.ActiveRecord(id)
}

// RevocationHistory returns all revocation records for the agent.
func (e *TrustEngine) RevocationHistory(id core.AgentID) []revocation.Record {
	return e.registry.History(id)
}

// IssueSeal issues a signed trust seal for the agent's live state.
func (e *TrustEngine) IssueSeal(ctx context.Context, id core.AgentID) (*seal.TrustSeal, error) {
	s, err := e.issuer.Issue(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.RecordSealIssued(s.Tier.String())
	}
	e.emit(events.TypeSealIssued, webhooks.EventSealIssued, id, map[string]interface{}{
		"seal_id":    s.SealID,
		"agent_id":   string(id),
		"tier":       s.Tier.String(),
		"expires_at": s.ExpiresAt.Format(time.RFC3339),
	})
	return s, nil
}

// ValidateSeal verifies a seal and returns the live authorization tier. A
// rejected seal leaves an audit entry: presenting a forged, expired, or
// revoked seal is itself a security event.
func (e *TrustEngine) ValidateSeal(ctx context.Context, s *seal.TrustSeal) (seal.Tier, error) {
	tier, err := e.issuer.Validate(ctx, s)
	if e.metrics != nil {
		e.metrics.RecordSealValidation(validationResult(err))
	}
	if err != nil && s != nil {
		e.appendAudit(ctx, s.AgentID, "seal_rejected", validationResult(err))
	}
	return tier, err
}

// AuditRoot returns the current Merkle root of the audit log, or "" when no
// tamper-evident log is attached.
func (e *TrustEngine) AuditRoot() string {
	if e.auditLog == nil {
		return ""
	}
	return e.auditLog.RootHash()
}

// appendAudit records a non-transition security event. Best-effort like the
// revocation registry's audit writes: a failing log never blocks the caller.
func (e *TrustEngine) appendAudit(ctx context.Context, id core.AgentID, action, reason string) {
	if e.auditLog == nil {
		return
	}
	event := audit.NewEvent(id, action, "", "", reason, "system", e.clock.Now())
	if err := e.auditLog.Append(ctx, event); err != nil {
		e.logger.Printf("Audit append failed for %s: %v", id, err)
	}
}

// AuditTrail returns the audit entries recorded for an agent.
func (e *TrustEngine) AuditTrail(id core.AgentID) []audit.Event {
	if e.auditLog == nil {
		return nil
	}
	return e.auditLog.EventsFor(id)
}

// onTransition fans committed lifecycle transitions out to the bus, the
// webhook dispatcher and metrics. Runs with the registry's per-agent lock
// held, so it must stay non-blocking.
func (e *TrustEngine) onTransition(id core.AgentID, from, to identity.AgentStatus, reason string) {
	if e.metrics != nil {
		e.metrics.RecordTransition(string(id), string(from), string(to), reason)
	}

	data := map[string]interface{}{
		"agent_id": string(id),
		"from":     string(from),
		"to":       string(to),
		"reason":   reason,
	}

	switch to {
	case identity.StatusQuarantined:
		e.emit(events.TypeAgentQuarantined, webhooks.EventQuarantined, id, data)
	case identity.StatusRevoked:
		e.emit(events.TypeAgentRevoked, webhooks.EventRevoked, id, data)
	case identity.StatusActive:
		if from == identity.StatusQuarantined {
			e.emit(events.TypeAgentReleased, webhooks.EventReleased, id, data)
		}
	}
}

func (e *TrustEngine) emit(busType string, hookType webhooks.EventType, id core.AgentID, data map[string]interface{}) {
	if e.bus != nil {
		e.bus.Emit(busType, eventSource, string(id), data)
	}
	if e.hooks != nil {
		e.hooks.Emit(hookType, string(id), data)
	}
}

func validationResult(err error) string {
	switch {
	case err == nil:
		return "valid"
	case errors.Is(err, core.ErrSealExpired):
		return "expired"
	case errors.Is(err, core.ErrAgentRevoked):
		return "revoked"
	case errors.Is(err, core.ErrUnknownAgent):
		return "unknown_agent"
	default:
		return "invalid_signature"
	}
}
