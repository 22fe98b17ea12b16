package score

// Event is a discrete trust-relevant observation about an agent. Each event
// kind updates exactly one component by a bounded increment or decrement.
type Event interface {
	// Component names the sub-score this event applies to.
	Component() Component

	// Delta is the bounded signed adjustment, in score points.
	Delta() float64

	// Kind is a stable label for audit entries and metrics.
	Kind() string
}

// TaskCompletion records the outcome of a delegated task. Successful tasks
// earn behavioral trust, failures cost half as much as a success earns.
type TaskCompletion struct {
	Success bool
}

func (TaskCompletion) Component() Component { return ComponentBehavioral }
func (TaskCompletion) Kind() string { return "task_completion" }
func (e TaskCompletion) Delta() float64 {
	if e.Success {
		return 10
	}
	return -5
}

// PeerEndorsement feeds the social component from the trust graph. Strength
// is the deterministic edge strength in [-1, 1]; disputes arrive as negative
// strength and subtract social trust.
type PeerEndorsement struct {
	Strength float64
}

func (PeerEndorsement) Component() Component { return ComponentSocial }
func (PeerEndorsement) Kind() string { return "peer_endorsement" }
func (e PeerEndorsement) Delta() float64 {
	s := e.Strength
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return s * 10
}

// UserFeedback is an explicit human rating in [1, 5]. A neutral 3 is worth
// nothing; the extremes move the behavioral component by ±4.
type UserFeedback struct {
	Rating int
}

func (UserFeedback) Component() Component { return ComponentBehavioral }
func (UserFeedback) Kind() string { return "user_feedback" }
func (e UserFeedback) Delta() float64 {
	r := e.Rating
	if r < 1 {
		r = 1
	} else if r > 5 {
		r = 5
	}
	return float64(r-3) * 2
}

// CryptoVerification records the outcome of a signature or proof check.
// Failures are weighted heavier than successes: a failed verification is a
// stronger signal than a routine pass.
type CryptoVerification struct {
	Success bool
}

func (CryptoVerification) Component() Component { return ComponentCryptographic }
func (CryptoVerification) Kind() string { return "crypto_verification" }
func (e CryptoVerification) Delta() float64 {
	if e.Success {
		return 5
	}
	return -15
}
