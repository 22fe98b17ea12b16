package score

import (
	"fmt"
	"math"
	"time"

	"github.com/ocx/trustcore/internal/core"
)

// ============================================================================
// COMPOSITE TRUST SCORE
// overall is always the convex combination of the named components. Penalties
// and decay scale the components so the identity holds at every observation
// point, not just after full recomputation.
// ============================================================================

// Component names a sub-score of the composite trust score.
type Component string

const (
	ComponentBehavioral    Component = "behavioral"
	ComponentSocial        Component = "social"
	ComponentCryptographic Component = "cryptographic"
)

// TrustScore is a derived, recomputed value — never independently
// authoritative. All values live in [0, 100].
type TrustScore struct {
	Overall        float64             `json:"overall"`
	Components     map[Component]float64 `json:"components"`
	LastComputedAt time.Time           `json:"last_computed_at"`
}

// Clone deep-copies the score so callers can't mutate engine-owned state.
func (s *TrustScore) Clone() *TrustScore {
	cp := &TrustScore{
		Overall:        s.Overall,
		Components:     make(map[Component]float64, len(s.Components)),
		LastComputedAt: s.LastComputedAt,
	}
	for k, v := range s.Components {
		cp.Components[k] = v
	}
	return cp
}

// Weights is the convex weighting of components into the overall score.
// Must sum to 1.0; validated once at startup.
type Weights struct {
	Behavioral    float64 `yaml:"behavioral"`
	Social        float64 `yaml:"social"`
	Cryptographic float64 `yaml:"cryptographic"`
}

// DefaultWeights returns the canonical weighting: behavioral 0.5,
// social 0.3, cryptographic 0.2.
func DefaultWeights() Weights {
	return Weights{Behavioral: 0.5, Social: 0.3, Cryptographic: 0.2}
}

const weightTolerance = 1e-9

// Validate fails fast with core.ErrInvalidWeights when the weights are
// negative or do not sum to 1.0.
func (w Weights) Validate() error {
	if w.Behavioral < 0 || w.Social < 0 || w.Cryptographic < 0 {
		return fmt.Errorf("%w: weights must be non-negative (%+v)", core.ErrInvalidWeights, w)
	}
	sum := w.Behavioral + w.Social + w.Cryptographic
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("%w: weights sum to %.9f, want 1.0", core.ErrInvalidWeights, sum)
	}
	return nil
}

// Of returns the weight assigned to a component.
func (w Weights) Of(c Component) float64 {
	switch c {
	case ComponentBehavioral:
		return w.Behavioral
	case ComponentSocial:
		return w.Social
	case ComponentCryptographic:
		return w.Cryptographic
	default:
		return 0
	}
}

// Combine computes the overall score from the component map.
func (w Weights) Combine(components map[Component]float64) float64 {
	return w.Behavioral*components[ComponentBehavioral] +
		w.Social*components[ComponentSocial] +
		w.Cryptographic*components[ComponentCryptographic]
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func newScore(baseline float64, now time.Time) *TrustScore {
	b := clampScore(baseline)
	return &TrustScore{
		Overall: b,
		Components: map[Component]float64{
			ComponentBehavioral:    b,
			ComponentSocial:        b,
			ComponentCryptographic: b,
		},
		LastComputedAt: now,
	}
}
