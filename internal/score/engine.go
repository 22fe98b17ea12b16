package score

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/ocx/trustcore/internal/core"
	"github.com/ocx/trustcore/internal/identity"
)

// Config holds the tunables for the score engine.
type Config struct {
	// Weights is the convex component weighting. Must sum to 1.0.
	Weights Weights

	// DecayRatePerDay is multiplied against the score once per day of
	// inactivity (overall *= rate^days). Default 0.95.
	DecayRatePerDay float64

	// Baseline is the component value assigned at identity creation.
	Baseline float64
}

// DefaultConfig returns the canonical engine configuration.
func DefaultConfig() Config {
	return Config{
		Weights:         DefaultWeights(),
		DecayRatePerDay: 0.95,
		Baseline:        0,
	}
}

// Engine maintains and evolves the TrustScore of every identity. The score
// table is owned-and-exclusive per agent: all mutation for one agent is
// serialized behind a per-agent lock, while different agents proceed fully in
// parallel. No other component writes scores directly.
type Engine struct {
	cfg        Config
	store      Store
	identities identity.Store
	clock      core.Clock
	logger     *log.Logger

	locksMu sync.Mutex
	locks   map[core.AgentID]*sync.Mutex
}

// NewEngine validates the weighting and builds a score engine. Misconfigured
// weights fail here, at startup — never at runtime.
func NewEngine(cfg Config, store Store, identities identity.Store, clock core.Clock) (*Engine, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if cfg.DecayRatePerDay <= 0 || cfg.DecayRatePerDay > 1 {
		return nil, fmt.Errorf("decay rate must be in (0, 1], got %f", cfg.DecayRatePerDay)
	}
	return &Engine{
		cfg:        cfg,
		store:      store,
		identities: identities,
		clock:      clock,
		logger:     log.New(log.Writer(), "[ScoreEngine] ", log.LstdFlags),
		locks:      make(map[core.AgentID]*sync.Mutex),
	}, nil
}

// lockFor returns the per-agent serialization point, creating it on first use.
func (e *Engine) lockFor(id core.AgentID) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// Register creates the baseline score for a new identity. Idempotent: an
// existing score is left untouched.
func (e *Engine) Register(ctx context.Context, id core.AgentID) error {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	if _, err := e.store.Get(ctx, id); err == nil {
		return nil
	}
	return e.store.Put(ctx, id, newScore(e.cfg.Baseline, e.clock.Now()))
}

// RecordEvent applies a discrete trust event to exactly one component,
// clamped to [0, 100], and recomputes the overall score. Events for a
// nonexistent identity fail with core.ErrUnknownAgent; they are never
// silently dropped.
func (e *Engine) RecordEvent(ctx context.Context, id core.AgentID, ev Event) error {
	return e.withAgent(ctx, id, func(s *TrustScore, now time.Time) error {
		c := ev.Component()
		s.Components[c] = clampScore(s.Components[c] + ev.Delta())
		s.Overall = e.cfg.Weights.Combine(s.Components)
		return nil
	})
}

// ApplyPenalty subtracts magnitude from the overall score directly,
// bypassing component weighting. Used by the revocation registry for severe
// violations. The components are rescaled proportionally so the convex
// identity overall == Σ weight·component survives the subtraction, and the
// overall score can never go negative.
func (e *Engine) ApplyPenalty(ctx context.Context, id core.AgentID, magnitude float64, reason string) error {
	if magnitude < 0 {
		return fmt.Errorf("penalty magnitude must be non-negative, got %f", magnitude)
	}
	return e.withAgent(ctx, id, func(s *TrustScore, now time.Time) error {
		old := s.Overall
		target := clampScore(old - magnitude)
		e.rescale(s, target)
		e.logger.Printf("Penalty applied to %s: %.2f → %.2f (%s)", id, old, target, reason)
		return nil
	})
}

// Decay applies any owed exponential decay as overall *= rate^days since the
// last computation. Idempotent: two calls with the same now are a single
// application, because LastComputedAt advances atomically with the score.
func (e *Engine) Decay(ctx context.Context, id core.AgentID) error {
	return e.withAgent(ctx, id, func(s *TrustScore, now time.Time) error {
		// withAgent already folded the owed decay in.
		return nil
	})
}

// Current returns the trust score after applying any owed decay. Reads
// therefore always reflect monotonic time.
func (e *Engine) Current(ctx context.Context, id core.AgentID) (*TrustScore, error) {
	var out *TrustScore
	err := e.withAgent(ctx, id, func(s *TrustScore, now time.Time) error {
		out = s.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// withAgent is the per-agent exclusive section: it serializes all mutation
// for one agent, rejects revoked identities, folds owed decay in before the
// mutation runs, and persists the result atomically with LastComputedAt.
// CPU-bound work (signature checks, path search) belongs before this point.
func (e *Engine) withAgent(ctx context.Context, id core.AgentID, fn func(s *TrustScore, now time.Time) error) error {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	agent, err := e.identities.Get(ctx, id)
	if err != nil {
		return err
	}
	if agent.Status == identity.StatusRevoked {
		return fmt.Errorf("score operation on %s: %w", id, core.ErrAgentRevoked)
	}

	s, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}

	now := e.clock.Now()
	e.applyDecayLocked(s, now)

	if err := fn(s, now); err != nil {
		return err
	}
	s.LastComputedAt = now
	return e.store.Put(ctx, id, s)
}

// applyDecayLocked folds elapsed-time decay into the score. Every component
// is scaled by rate^days, which multiplies the overall by the same factor —
// decay is multiplicative-on-overall and preserves the convex identity.
func (e *Engine) applyDecayLocked(s *TrustScore, now time.Time) {
	elapsed := now.Sub(s.LastComputedAt)
	if elapsed <= 0 {
		return
	}
	days := elapsed.Hours() / 24
	factor := math.Pow(e.cfg.DecayRatePerDay, days)
	for c := range s.Components {
		s.Components[c] *= factor
	}
	s.Overall = e.cfg.Weights.Combine(s.Components)
}

// rescale sets the overall score to target and scales the components
// proportionally so overall == Σ weight·component still holds.
func (e *Engine) rescale(s *TrustScore, target float64) {
	if s.Overall <= 0 || target <= 0 {
		// Nothing to scale from (or scaling to the floor): zero everything.
		for c := range s.Components {
			s.Components[c] = 0
		}
		s.Overall = 0
		return
	}
	ratio := target / s.Overall
	for c := range s.Components {
		s.Components[c] = clampScore(s.Components[c] * ratio)
	}
	s.Overall = e.cfg.Weights.Combine(s.Components)
}

// Weights exposes the validated weighting for reporting surfaces.
func (e *Engine) Weights() Weights { return e.cfg.Weights }
