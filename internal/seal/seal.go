package seal

import (
	"time"

	"github.com/ocx/trustcore/internal/core"
	"github.com/ocx/trustcore/internal/score"
)

// Tier is the ordered permission tier derived from the overall trust score.
type Tier int

const (
	TierUntrusted Tier = iota // [0, 50)
	TierBasic                 // [50, 70)
	TierVerified              // [70, 90)
	TierTrusted               // [90, 100]
)

func (t Tier) String() string {
	switch t {
	case TierUntrusted:
		return "UNTRUSTED"
	case TierBasic:
		return "BASIC"
	case TierVerified:
		return "VERIFIED"
	case TierTrusted:
		return "TRUSTED"
	default:
		return "UNKNOWN"
	}
}

// ExecutionMode is the sandbox/supervision level mapped 1:1 from the tier.
// Consumed by execution environments as an isolation-level selector.
type ExecutionMode string

const (
	ModeAuditOnly  ExecutionMode = "AUDIT_ONLY"
	ModeSupervised ExecutionMode = "SUPERVISED"
	ModeMonitored  ExecutionMode = "MONITORED"
	ModeAutonomous ExecutionMode = "AUTONOMOUS"
)

// ExecutionMode returns the execution mode for the tier.
func (t Tier) ExecutionMode() ExecutionMode {
	switch t {
	case TierBasic:
		return ModeSupervised
	case TierVerified:
		return ModeMonitored
	case TierTrusted:
		return ModeAutonomous
	default:
		return ModeAuditOnly
	}
}

// TierForScore maps an overall score to its tier. Boundaries are
// inclusive-exclusive, except the top tier which includes 100.
func TierForScore(overall float64) Tier {
	switch {
	case overall >= 90:
		return TierTrusted
	case overall >= 70:
		return TierVerified
	case overall >= 50:
		return TierBasic
	default:
		return TierUntrusted
	}
}

// Floor returns the minimum overall score for the tier.
func (t Tier) Floor() float64 {
	switch t {
	case TierTrusted:
		return 90
	case TierVerified:
		return 70
	case TierBasic:
		return 50
	default:
		return 0
	}
}

// TrustSeal is a signed, time-bounded artifact binding an identity, a score
// snapshot, and a permission tier. It is never the source of truth: the live
// score and revocation state are, and validation recomputes the tier from
// them.
type TrustSeal struct {
	SealID          string            `json:"seal_id"`
	AgentID         core.AgentID      `json:"agent_id"`
	Tier            Tier              `json:"tier"`
	ScoreSnapshot   *score.TrustScore `json:"score_snapshot"`
	IssuedAt        time.Time         `json:"issued_at"`
	ExpiresAt       time.Time         `json:"expires_at"`
	IssuerSignature []byte            `json:"issuer_signature"`
}

// SigningBytes returns the deterministic canonical encoding of the signed
// fields. Both issuance and validation must derive signatures from exactly
// these bytes or seals will not verify across nodes.
func (s *TrustSeal) SigningBytes() []byte {
	return core.CanonicalMap(map[string]interface{}{
		"seal_id":    s.SealID,
		"agent_id":   s.AgentID.String(),
		"tier":       s.Tier.String(),
		"overall":    s.ScoreSnapshot.Overall,
		"behavioral": s.ScoreSnapshot.Components[score.ComponentBehavioral],
		"social":     s.ScoreSnapshot.Components[score.ComponentSocial],
		"crypto":     s.ScoreSnapshot.Components[score.ComponentCryptographic],
		"issued_at":  s.IssuedAt,
		"expires_at": s.ExpiresAt,
	})
}
