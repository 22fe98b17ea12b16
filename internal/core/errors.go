package core

import "errors"

// ============================================================================
// TRUST ERROR TAXONOMY
// Every failure in the engine maps to exactly one of these sentinels so that
// policy layers above can decide remediation (re-authenticate vs. appeal vs.
// permanent rejection). Wrap with fmt.Errorf("...: %w", err) and match with
// errors.Is.
// ============================================================================

var (
	// ErrUnknownAgent — the referenced identity does not exist. Never
	// recovered automatically; surfaced to the caller as-is.
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrInvalidSignature — signature verification failed. Every operation
	// depending on the signature is aborted and the failure is appended to
	// the audit sink.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrAgentRevoked — a write or seal issuance was attempted against a
	// revoked identity. Permanent; callers must not retry.
	ErrAgentRevoked = errors.New("agent revoked")

	// ErrIllegalTransition — a lifecycle transition was requested from an
	// incompatible state.
	ErrIllegalTransition = errors.New("illegal state transition")

	// ErrResolutionTimeout — an external resolver exceeded its budget.
	// Retryable with backoff; deliberately distinct from ErrUnknownAgent.
	ErrResolutionTimeout = errors.New("identity resolution timeout")

	// ErrInvalidWeights — score weighting configuration does not sum to 1.0.
	// Fatal at startup, never produced at runtime.
	ErrInvalidWeights = errors.New("invalid score weights")

	// ErrSealExpired — a trust seal is past its expiry.
	ErrSealExpired = errors.New("trust seal expired")
)
