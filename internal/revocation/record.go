package revocation

import (
	"time"

	"github.com/google/uuid"

	"github.com/ocx/trustcore/internal/core"
)

// Reason classifies why trust was withdrawn.
type Reason string

const (
	ReasonPolicyViolation    Reason = "POLICY_VIOLATION"
	ReasonAnomalousBehavior  Reason = "ANOMALOUS_BEHAVIOR"
	ReasonKeyCompromise      Reason = "KEY_COMPROMISE"
	ReasonFailedVerification Reason = "FAILED_VERIFICATION"
	ReasonManualAction       Reason = "MANUAL_ACTION"
)

// Severity drives the restriction set and the release path.
type Severity string

const (
	// SeverityAutomatic expires on its own after the configured window.
	SeverityAutomatic Severity = "AUTOMATIC"

	// SeverityManualReview holds until an operator reinstates or revokes.
	SeverityManualReview Severity = "MANUAL_REVIEW"

	// SeverityPermanent revokes directly; only the recovery process reverses it.
	SeverityPermanent Severity = "PERMANENT"
)

// Restriction is a capability withheld while a record is in effect.
type Restriction string

const (
	RestrictExternalCalls Restriction = "NO_EXTERNAL_CALLS"
	RestrictDelegation    Restriction = "NO_DELEGATION"
	RestrictSealIssuance  Restriction = "NO_SEAL_ISSUANCE"
	RestrictHighValueOps  Restriction = "NO_HIGH_VALUE_OPS"
	RestrictAllExecution  Restriction = "NO_EXECUTION"
)

// restrictionPolicy maps severity to the restriction set applied while the
// record is active. The table is the policy; transitions just look it up.
var restrictionPolicy = map[Severity][]Restriction{
	SeverityAutomatic:    {RestrictHighValueOps, RestrictDelegation},
	SeverityManualReview: {RestrictHighValueOps, RestrictDelegation, RestrictExternalCalls},
	SeverityPermanent:    {RestrictAllExecution, RestrictSealIssuance, RestrictExternalCalls, RestrictDelegation, RestrictHighValueOps},
}

// RestrictionsFor returns a copy of the policy restriction set for a severity.
func RestrictionsFor(severity Severity) []Restriction {
	return append([]Restriction(nil), restrictionPolicy[severity]...)
}

// Record is one revocation or quarantine event. At most one record per agent
// is active at a time; the full history is retained for audit and never
// deleted.
type Record struct {
	RecordID     string        `json:"record_id"`
	AgentID      core.AgentID  `json:"agent_id"`
	Reason       Reason        `json:"reason"`
	Severity     Severity      `json:"severity"`
	IssuedBy     string        `json:"issued_by"`
	IssuedAt     time.Time     `json:"issued_at"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty"` // only for SeverityAutomatic
	Restrictions []Restriction `json:"restrictions"`
	LiftedAt     *time.Time    `json:"lifted_at,omitempty"`
}

func newRecord(agentID core.AgentID, reason Reason, severity Severity, issuedBy string, now time.Time) *Record {
	return &Record{
		RecordID:     uuid.NewString(),
		AgentID:      agentID,
		Reason:       reason,
		Severity:     severity,
		IssuedBy:     issuedBy,
		IssuedAt:     now,
		Restrictions: RestrictionsFor(severity),
	}
}

// Active reports whether the record is still in effect at t.
func (r *Record) Active(t time.Time) bool {
	if r.LiftedAt != nil {
		return false
	}
	if r.ExpiresAt != nil && !t.Before(*r.ExpiresAt) {
		return false
	}
	return true
}

// RecoveryStep is one externally-executed requirement of a recovery plan.
// The registry only checks that every required step is present and attested;
// the collaborators that perform them live outside this engine.
type RecoveryStep string

const (
	StepBehaviorReassessment  RecoveryStep = "BEHAVIOR_REASSESSMENT"
	StepComplianceRemediation RecoveryStep = "COMPLIANCE_REMEDIATION"
	StepSecurityAudit         RecoveryStep = "SECURITY_AUDIT"
	StepPeerReview            RecoveryStep = "PEER_REVIEW"
)

// RequiredRecoverySteps is the policy set a recovery plan must cover.
var RequiredRecoverySteps = []RecoveryStep{
	StepBehaviorReassessment,
	StepComplianceRemediation,
	StepSecurityAudit,
	StepPeerReview,
}

// RecoveryPlan attests completed recovery steps by reference.
type RecoveryPlan struct {
	Steps map[RecoveryStep]string `json:"steps"` // step → evidence reference
}

// Complete reports whether every required step is attested, and which steps
// are missing otherwise.
func (p RecoveryPlan) Complete() (bool, []RecoveryStep) {
	var missing []RecoveryStep
	for _, step := range RequiredRecoverySteps {
		if ref, ok := p.Steps[step]; !ok || ref == "" {
			missing = append(missing, step)
		}
	}
	return len(missing) == 0, missing
}
