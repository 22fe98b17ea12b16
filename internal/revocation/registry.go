// Package revocation owns the trust lifecycle state machine:
//
//	Active → Quarantined → (Active | Revoked)
//	Active → Revoked (direct, for SeverityPermanent)
//	Revoked → Active (only through a complete recovery plan)
//
// Status transitions happen nowhere else in the system, and every transition
// is recorded as an immutable audit entry before the state mutation so state
// and audit log never diverge.
package revocation

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ocx/trustcore/internal/audit"
	"github.com/ocx/trustcore/internal/core"
	"github.com/ocx/trustcore/internal/identity"
	"github.com/ocx/trustcore/internal/score"
)

// Config holds the registry tunables.
type Config struct {
	// QuarantinePenalty is subtracted from the overall score on quarantine.
	QuarantinePenalty float64

	// AutomaticWindow is how long a SeverityAutomatic quarantine lasts.
	AutomaticWindow time.Duration
}

// DefaultConfig returns the canonical registry configuration.
func DefaultConfig() Config {
	return Config{
		QuarantinePenalty: 50,
		AutomaticWindow:   1 * time.Hour,
	}
}

// validTransitions is the legal state-machine edge set.
var validTransitions = map[identity.AgentStatus][]identity.AgentStatus{
	identity.StatusActive:      {identity.StatusQuarantined, identity.StatusRevoked},
	identity.StatusQuarantined: {identity.StatusActive, identity.StatusRevoked},
	identity.StatusRevoked:     {identity.StatusActive}, // recovery only
}

func transitionAllowed(from, to identity.AgentStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionFunc observes committed transitions (for event fan-out).
type TransitionFunc func(agentID core.AgentID, from, to identity.AgentStatus, reason string)

// Registry owns revocation records and drives all status transitions.
// Mutations are serialized per agent; different agents proceed in parallel.
type Registry struct {
	cfg        Config
	identities identity.Store
	scores     *score.Engine
	sink       audit.Sink
	clock      core.Clock
	logger     *log.Logger

	// OnTransition, when set, is called after each committed transition.
	OnTransition TransitionFunc

	locksMu sync.Mutex
	locks   map[core.AgentID]*sync.Mutex

	recordsMu sync.RWMutex
	records   map[core.AgentID][]*Record
}

// NewRegistry builds a revocation registry.
func NewRegistry(cfg Config, identities identity.Store, scores *score.Engine, sink audit.Sink, clock core.Clock) *Registry {
	if cfg.QuarantinePenalty <= 0 {
		cfg.QuarantinePenalty = DefaultConfig().QuarantinePenalty
	}
	if cfg.AutomaticWindow <= 0 {
		cfg.AutomaticWindow = DefaultConfig().AutomaticWindow
	}
	return &Registry{
		cfg:        cfg,
		identities: identities,
		scores:     scores,
		sink:       sink,
		clock:      clock,
		logger:     log.New(log.Writer(), "[RevocationRegistry] ", log.LstdFlags),
		locks:      make(map[core.AgentID]*sync.Mutex),
		records:    make(map[core.AgentID][]*Record),
	}
}

func (r *Registry) lockFor(id core.AgentID) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

// Quarantine moves an Active agent into quarantine, applies the score
// penalty, and installs the severity's restriction set. SeverityAutomatic
// records expire after the configured window and are picked up by the
// auto-release sweep.
func (r *Registry) Quarantine(ctx context.Context, id core.AgentID, reason Reason, severity Severity, actor string) error {
	if severity == SeverityPermanent {
		// Permanent severity revokes directly; quarantine is not a stop on
		// that path.
		return r.Revoke(ctx, id, reason, actor)
	}

	l := r.lockFor(id)
	l.Lock()
	defer l.Unlock()

	agent, err := r.identities.Get(ctx, id)
	if err != nil {
		return err
	}
	if agent.Status != identity.StatusActive {
		return fmt.Errorf("quarantine %s from %s: %w", id, agent.Status, core.ErrIllegalTransition)
	}

	now := r.clock.Now()
	record := newRecord(id, reason, severity, actor, now)
	if severity == SeverityAutomatic {
		expires := now.Add(r.cfg.AutomaticWindow)
		record.ExpiresAt = &expires
	}

	r.appendAudit(ctx, id, "quarantine", identity.StatusActive, identity.StatusQuarantined, string(reason), actor, now)

	r.recordsMu.Lock()
	r.records[id] = append(r.records[id], record)
	r.recordsMu.Unlock()

	if err := r.identities.SetStatus(ctx, id, identity.StatusQuarantined); err != nil {
		return err
	}
	if err := r.scores.ApplyPenalty(ctx, id, r.cfg.QuarantinePenalty, "quarantine: "+string(reason)); err != nil {
		return fmt.Errorf("quarantine penalty for %s: %w", id, err)
	}

	r.logger.Printf("Quarantined %s (reason=%s severity=%s)", id, reason, severity)
	r.notify(id, identity.StatusActive, identity.StatusQuarantined, string(reason))
	return nil
}

// AttemptAutoRelease returns a quarantined agent to Active once its
// SeverityAutomatic record has expired. The penalized score is not restored:
// decay recovery and new positive events are the only path back up.
func (r *Registry) AttemptAutoRelease(ctx context.Context, id core.AgentID) error {
	l := r.lockFor(id)
	l.Lock()
	defer l.Unlock()

	agent, err := r.identities.Get(ctx, id)
	if err != nil {
		return err
	}
	if agent.Status != identity.StatusQuarantined {
		return fmt.Errorf("auto-release %s from %s: %w", id, agent.Status, core.ErrIllegalTransition)
	}

	record := r.latestRecordLocked(id)
	if record == nil || record.Severity != SeverityAutomatic {
		return fmt.Errorf("auto-release %s: record is not automatic: %w", id, core.ErrIllegalTransition)
	}

	now := r.clock.Now()
	if record.ExpiresAt == nil || now.Before(*record.ExpiresAt) {
		return fmt.Errorf("auto-release %s: quarantine window still open: %w", id, core.ErrIllegalTransition)
	}

	r.appendAudit(ctx, id, "auto_release", identity.StatusQuarantined, identity.StatusActive, string(record.Reason), "system", now)

	record.LiftedAt = &now
	record.Restrictions = nil
	if err := r.identities.SetStatus(ctx, id, identity.StatusActive); err != nil {
		return err
	}

	r.logger.Printf("Auto-released %s from quarantine", id)
	r.notify(id, identity.StatusQuarantined, identity.StatusActive, "automatic window expired")
	return nil
}

// Revoke terminally withdraws trust. Legal from Active or Quarantined;
// calling it on an already-revoked agent is idempotent-safe and succeeds
// without creating a second record.
func (r *Registry) Revoke(ctx context.Context, id core.AgentID, reason Reason, issuedBy string) error {
	l := r.lockFor(id)
	l.Lock()
	defer l.Unlock()

	agent, err := r.identities.Get(ctx, id)
	if err != nil {
		return err
	}
	if agent.Status == identity.StatusRevoked {
		return nil
	}
	if !transitionAllowed(agent.Status, identity.StatusRevoked) {
		return fmt.Errorf("revoke %s from %s: %w", id, agent.Status, core.ErrIllegalTransition)
	}

	now := r.clock.Now()
	r.appendAudit(ctx, id, "revoke", agent.Status, identity.StatusRevoked, string(reason), issuedBy, now)

	// Lift any outstanding quarantine record; the permanent record replaces it.
	if prev := r.latestRecordLocked(id); prev != nil && prev.Active(now) {
		prev.LiftedAt = &now
	}

	record := newRecord(id, reason, SeverityPermanent, issuedBy, now)
	r.recordsMu.Lock()
	r.records[id] = append(r.records[id], record)
	r.recordsMu.Unlock()

	if err := r.identities.SetStatus(ctx, id, identity.StatusRevoked); err != nil {
		return err
	}

	r.logger.Printf("Revoked %s (reason=%s issued_by=%s)", id, reason, issuedBy)
	r.notify(id, agent.Status, identity.StatusRevoked, string(reason))
	return nil
}

// InitiateRecovery reverses a revocation when the plan attests every policy
// step. On success the agent returns to Active with a fresh key epoch — the
// old key is retired into KeyHistory — and the revocation record stays
// queryable for audit. Returns the new private key so the recovered agent
// can be re-provisioned.
func (r *Registry) InitiateRecovery(ctx context.Context, id core.AgentID, plan RecoveryPlan, actor string) (ed25519.PrivateKey, error) {
	l := r.lockFor(id)
	l.Lock()
	defer l.Unlock()

	agent, err := r.identities.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if agent.Status != identity.StatusRevoked {
		return nil, fmt.Errorf("recovery for %s from %s: %w", id, agent.Status, core.ErrIllegalTransition)
	}

	if ok, missing := plan.Complete(); !ok {
		return nil, fmt.Errorf("recovery plan for %s missing steps %v: %w", id, missing, core.ErrIllegalTransition)
	}

	pub, priv, err := identity.GenerateKeypair()
	if err != nil {
		return nil, err
	}

	now := r.clock.Now()
	r.appendAudit(ctx, id, "recovery", identity.StatusRevoked, identity.StatusActive, "recovery plan complete", actor, now)

	if err := agent.RotateKey(pub, now); err != nil {
		return nil, err
	}
	agent.Status = identity.StatusActive
	if err := r.identities.Put(ctx, agent); err != nil {
		return nil, err
	}

	if record := r.latestRecordLocked(id); record != nil && record.LiftedAt == nil {
		record.LiftedAt = &now
	}

	r.logger.Printf("Recovered %s: new key epoch issued (epochs retired: %d)", id, len(agent.KeyHistory))
	r.notify(id, identity.StatusRevoked, identity.StatusActive, "recovery plan complete")
	return priv, nil
}

// ActiveRecord returns the record currently in effect for the agent, or nil.
func (r *Registry) ActiveRecord(id core.AgentID) *Record {
	r.recordsMu.RLock()
	defer r.recordsMu.RUnlock()
	now := r.clock.Now()
	records := r.records[id]
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Active(now) {
			cp := *records[i]
			return &cp
		}
	}
	return nil
}

// History returns all records for the agent, oldest first.
func (r *Registry) History(id core.AgentID) []Record {
	r.recordsMu.RLock()
	defer r.recordsMu.RUnlock()
	out := make([]Record, 0, len(r.records[id]))
	for _, rec := range r.records[id] {
		out = append(out, *rec)
	}
	return out
}

// SweepAutoReleases attempts release for every agent holding an expired
// automatic record. Called by the scheduled sweep.
func (r *Registry) SweepAutoReleases(ctx context.Context) int {
	r.recordsMu.RLock()
	now := r.clock.Now()
	var due []core.AgentID
	for id, records := range r.records {
		for i := len(records) - 1; i >= 0; i-- {
			rec := records[i]
			if rec.Severity == SeverityAutomatic && rec.LiftedAt == nil &&
				rec.ExpiresAt != nil && !now.Before(*rec.ExpiresAt) {
				due = append(due, id)
				break
			}
		}
	}
	r.recordsMu.RUnlock()

	released := 0
	for _, id := range due {
		if err := r.AttemptAutoRelease(ctx, id); err == nil {
			released++
		}
	}
	return released
}

// latestRecordLocked returns the newest record for the agent. Caller must
// hold the per-agent lock (record slice mutation is still guarded).
func (r *Registry) latestRecordLocked(id core.AgentID) *Record {
	r.recordsMu.RLock()
	defer r.recordsMu.RUnlock()
	records := r.records[id]
	if len(records) == 0 {
		return nil
	}
	return records[len(records)-1]
}

// appendAudit records the transition. Audit failures are reported but never
// block the transition — observability is best-effort, state correctness is
// not contingent on it.
func (r *Registry) appendAudit(ctx context.Context, id core.AgentID, action string, from, to identity.AgentStatus, reason, actor string, ts time.Time) {
	event := audit.NewEvent(id, action, string(from), string(to), reason, actor, ts)
	if err := r.sink.Append(ctx, event); err != nil {
		r.logger.Printf("Audit append failed for %s %s: %v", id, action, err)
	}
}

func (r *Registry) notify(id core.AgentID, from, to identity.AgentStatus, reason string) {
	if r.OnTransition != nil {
		r.OnTransition(id, from, to, reason)
	}
}
