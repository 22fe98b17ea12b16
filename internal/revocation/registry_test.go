package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/trustcore/internal/audit"
	"github.com/ocx/trustcore/internal/core"
	"github.com/ocx/trustcore/internal/identity"
	"github.com/ocx/trustcore/internal/score"
)

type fixture struct {
	registry   *Registry
	identities identity.Store
	scores     *score.Engine
	log        *audit.MerkleLog
	clock      *core.ManualClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := core.NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	identities := identity.NewMemoryStore()
	scores, err := score.NewEngine(score.DefaultConfig(), score.NewMemoryStore(), identities, clock)
	require.NoError(t, err)
	merkleLog := audit.NewMerkleLog()
	registry := NewRegistry(DefaultConfig(), identities, scores, merkleLog, clock)
	return &fixture{registry: registry, identities: identities, scores: scores, log: merkleLog, clock: clock}
}

func (f *fixture) addAgent(t *testing.T, id core.AgentID) {
	t.Helper()
	pub, _, err := identity.GenerateKeypair()
	require.NoError(t, err)
	agent, err := identity.New(id, pub, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.identities.Put(context.Background(), agent))
	require.NoError(t, f.scores.Register(context.Background(), id))
}

func (f *fixture) status(t *testing.T, id core.AgentID) identity.AgentStatus {
	t.Helper()
	agent, err := f.identities.Get(context.Background(), id)
	require.NoError(t, err)
	return agent.Status
}

// ============================================================================
// QUARANTINE TESTS
// ============================================================================

func TestQuarantine_AppliesPenaltyAndRestrictions(t *testing.T) {
	f := newFixture(t)
	id := core.AgentID("acme:prod:suspect")
	f.addAgent(t, id)
	ctx := context.Background()

	// Raise the score so the penalty is observable
	for i := 0; i < 8; i++ {
		require.NoError(t, f.scores.RecordEvent(ctx, id, score.TaskCompletion{Success: true}))
	}
	before, err := f.scores.Current(ctx, id)
	require.NoError(t, err)

	require.NoError(t, f.registry.Quarantine(ctx, id, ReasonAnomalousBehavior, SeverityAutomatic, "detector"))

	assert.Equal(t, identity.StatusQuarantined, f.status(t, id))

	after, err := f.scores.Current(ctx, id)
	require.NoError(t, err)
	expected := before.Overall - 50
	if expected < 0 {
		expected = 0
	}
	assert.InDelta(t, expected, after.Overall, 1e-9)

	record := f.registry.ActiveRecord(id)
	require.NotNil(t, record)
	assert.Equal(t, SeverityAutomatic, record.Severity)
	assert.ElementsMatch(t, []Restriction{RestrictHighValueOps, RestrictDelegation}, record.Restrictions)
	require.NotNil(t, record.ExpiresAt)
}

func TestQuarantine_OnlyFromActive(t *testing.T) {
	f := newFixture(t)
	id := core.AgentID("acme:prod:suspect")
	f.addAgent(t, id)
	ctx := context.Background()

	require.NoError(t, f.registry.Quarantine(ctx, id, ReasonPolicyViolation, SeverityManualReview, "ops"))
	err := f.registry.Quarantine(ctx, id, ReasonPolicyViolation, SeverityManualReview, "ops")
	assert.ErrorIs(t, err, core.ErrIllegalTransition)
}

func TestQuarantine_PermanentSeverityRevokesDirectly(t *testing.T) {
	f := newFixture(t)
	id := core.AgentID("acme:prod:suspect")
	f.addAgent(t, id)

	require.NoError(t, f.registry.Quarantine(context.Background(), id, ReasonKeyCompromise, SeverityPermanent, "ops"))
	assert.Equal(t, identity.StatusRevoked, f.status(t, id))
}

func TestQuarantine_UnknownAgent(t *testing.T) {
	f := newFixture(t)
	err := f.registry.Quarantine(context.Background(), "acme:prod:ghost", ReasonManualAction, SeverityAutomatic, "ops")
	assert.ErrorIs(t, err, core.ErrUnknownAgent)
}

// ============================================================================
// AUTO-RELEASE TESTS
// ============================================================================

func TestAutoRelease_BlockedUntilWindowExpires(t *testing.T) {
	f := newFixture(t)
	id := core.AgentID("acme:prod:suspect")
	f.addAgent(t, id)
	ctx := context.Background()

	require.NoError(t, f.registry.Quarantine(ctx, id, ReasonAnomalousBehavior, SeverityAutomatic, "detector"))

	// The window is still open
	err := f.registry.AttemptAutoRelease(ctx, id)
	assert.ErrorIs(t, err, core.ErrIllegalTransition)
	assert.Equal(t, identity.StatusQuarantined, f.status(t, id))

	f.clock.Advance(DefaultConfig().AutomaticWindow + time.Minute)

	require.NoError(t, f.registry.AttemptAutoRelease(ctx, id))
	assert.Equal(t, identity.StatusActive, f.status(t, id))
	assert.Nil(t, f.registry.ActiveRecord(id), "lifted record is no longer active")
}

func TestAutoRelease_DoesNotRestoreScore(t *testing.T) {
	f := newFixture(t)
	id := core.AgentID("acme:prod:suspect")
	f.addAgent(t, id)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, f.scores.RecordEvent(ctx, id, score.TaskCompletion{Success: true}))
	}
	require.NoError(t, f.registry.Quarantine(ctx, id, ReasonAnomalousBehavior, SeverityAutomatic, "detector"))

	penalized, err := f.scores.Current(ctx, id)
	require.NoError(t, err)

	f.clock.Advance(DefaultConfig().AutomaticWindow + time.Minute)
	require.NoError(t, f.registry.AttemptAutoRelease(ctx, id))

	after, err := f.scores.Current(ctx, id)
	require.NoError(t, err)
	assert.LessOrEqual(t, after.Overall, penalized.Overall,
		"release restores status, the score climbs back only through decay recovery and new events")
}

func TestAutoRelease_ManualReviewRecordsNeverAutoRelease(t *testing.T) {
	f := newFixture(t)
	id := core.AgentID("acme:prod:suspect")
	f.addAgent(t, id)
	ctx := context.Background()

	require.NoError(t, f.registry.Quarantine(ctx, id, ReasonPolicyViolation, SeverityManualReview, "ops"))
	f.clock.Advance(24 * time.Hour)

	err := f.registry.AttemptAutoRelease(ctx, id)
	assert.ErrorIs(t, err, core.ErrIllegalTransition)
}

func TestSweepAutoReleases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	due := core.AgentID("acme:prod:due")
	manual := core.AgentID("acme:prod:manual")
	f.addAgent(t, due)
	f.addAgent(t, manual)

	require.NoError(t, f.registry.Quarantine(ctx, due, ReasonAnomalousBehavior, SeverityAutomatic, "detector"))
	require.NoError(t, f.registry.Quarantine(ctx, manual, ReasonPolicyViolation, SeverityManualReview, "ops"))

	f.clock.Advance(DefaultConfig().AutomaticWindow + time.Minute)

	released := f.registry.SweepAutoReleases(ctx)
	assert.Equal(t, 1, released)
	assert.Equal(t, identity.StatusActive, f.status(t, due))
	assert.Equal(t, identity.StatusQuarantined, f.status(t, manual))
}

// ============================================================================
// REVOCATION TESTS
// ============================================================================

func TestRevoke_FromActiveAndQuarantined(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := core.AgentID("acme:prod:a")
	b := core.AgentID("acme:prod:b")
	f.addAgent(t, a)
	f.addAgent(t, b)

	require.NoError(t, f.registry.Revoke(ctx, a, ReasonKeyCompromise, "ops"))
	assert.Equal(t, identity.StatusRevoked, f.status(t, a))

	require.NoError(t, f.registry.Quarantine(ctx, b, ReasonAnomalousBehavior, SeverityAutomatic, "detector"))
	require.NoError(t, f.registry.Revoke(ctx, b, ReasonPolicyViolation, "ops"))
	assert.Equal(t, identity.StatusRevoked, f.status(t, b))
}

func TestRevoke_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := core.AgentID("acme:prod:a")
	f.addAgent(t, id)

	require.NoError(t, f.registry.Revoke(ctx, id, ReasonKeyCompromise, "ops"))
	historyLen := len(f.registry.History(id))

	// Second revoke succeeds without a second record
	require.NoError(t, f.registry.Revoke(ctx, id, ReasonKeyCompromise, "ops"))
	assert.Equal(t, historyLen, len(f.registry.History(id)))
}

func TestRevoke_PermanentRestrictionSet(t *testing.T) {
	f := newFixture(t)
	id := core.AgentID("acme:prod:a")
	f.addAgent(t, id)

	require.NoError(t, f.registry.Revoke(context.Background(), id, ReasonKeyCompromise, "ops"))
	record := f.registry.ActiveRecord(id)
	require.NotNil(t, record)
	assert.Contains(t, record.Restrictions, RestrictAllExecution)
	assert.Contains(t, record.Restrictions, RestrictSealIssuance)
}

// ============================================================================
// RECOVERY TESTS
// ============================================================================

func completePlan() RecoveryPlan {
	return RecoveryPlan{Steps: map[RecoveryStep]string{
		StepBehaviorReassessment:  "report-1",
		StepComplianceRemediation: "ticket-2",
		StepSecurityAudit:         "audit-3",
		StepPeerReview:            "review-4",
	}}
}

func TestRecovery_RequiresCompletePlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := core.AgentID("acme:prod:a")
	f.addAgent(t, id)
	require.NoError(t, f.registry.Revoke(ctx, id, ReasonKeyCompromise, "ops"))

	plan := completePlan()
	delete(plan.Steps, StepSecurityAudit)

	_, err := f.registry.InitiateRecovery(ctx, id, plan, "ops")
	assert.ErrorIs(t, err, core.ErrIllegalTransition)
	assert.Equal(t, identity.StatusRevoked, f.status(t, id))
}

func TestRecovery_RotatesKeyAndReactivates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := core.AgentID("acme:prod:a")
	f.addAgent(t, id)

	before, err := f.identities.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, f.registry.Revoke(ctx, id, ReasonKeyCompromise, "ops"))

	priv, err := f.registry.InitiateRecovery(ctx, id, completePlan(), "ops")
	require.NoError(t, err)
	require.NotNil(t, priv)

	after, err := f.identities.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, identity.StatusActive, after.Status)
	assert.NotEqual(t, before.PublicKey, after.PublicKey, "recovery must issue a fresh key epoch")
	require.Len(t, after.KeyHistory, 1)
	assert.Equal(t, before.PublicKey, after.KeyHistory[0].PublicKey)

	// History survives for audit even after the record is lifted
	assert.NotEmpty(t, f.registry.History(id))
	assert.Nil(t, f.registry.ActiveRecord(id))
}

func TestRecovery_OnlyFromRevoked(t *testing.T) {
	f := newFixture(t)
	id := core.AgentID("acme:prod:a")
	f.addAgent(t, id)

	_, err := f.registry.InitiateRecovery(context.Background(), id, completePlan(), "ops")
	assert.ErrorIs(t, err, core.ErrIllegalTransition)
}

// ============================================================================
// AUDIT ORDERING
// ============================================================================

func TestTransitions_AppendAuditBeforeMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := core.AgentID("acme:prod:a")
	f.addAgent(t, id)

	require.NoError(t, f.registry.Quarantine(ctx, id, ReasonAnomalousBehavior, SeverityAutomatic, "detector"))
	require.NoError(t, f.registry.Revoke(ctx, id, ReasonPolicyViolation, "ops"))
	_, err := f.registry.InitiateRecovery(ctx, id, completePlan(), "ops")
	require.NoError(t, err)

	events := f.log.EventsFor(id)
	require.Len(t, events, 3)
	assert.Equal(t, "quarantine", events[0].Action)
	assert.Equal(t, "revoke", events[1].Action)
	assert.Equal(t, "recovery", events[2].Action)
	assert.Equal(t, string(identity.StatusQuarantined), events[1].FromState)
}

func TestOnTransition_Observed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := core.AgentID("acme:prod:a")
	f.addAgent(t, id)

	type transition struct {
		from, to identity.AgentStatus
	}
	var seen []transition
	f.registry.OnTransition = func(_ core.AgentID, from, to identity.AgentStatus, _ string) {
		seen = append(seen, transition{from, to})
	}

	require.NoError(t, f.registry.Quarantine(ctx, id, ReasonAnomalousBehavior, SeverityAutomatic, "detector"))
	f.clock.Advance(DefaultConfig().AutomaticWindow + time.Minute)
	require.NoError(t, f.registry.AttemptAutoRelease(ctx, id))

	require.Len(t, seen, 2)
	assert.Equal(t, transition{identity.StatusActive, identity.StatusQuarantined}, seen[0])
	assert.Equal(t, transition{identity.StatusQuarantined, identity.StatusActive}, seen[1])
}
