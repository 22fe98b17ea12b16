package sdk

import "fmt"

// Agent is the identity record returned by the API.
type Agent struct {
	AgentID   string `json:"agent_id"`
	Status    string `json:"status"`
	PublicKey string `json:"public_key"`
	KeyEpochs int    `json:"key_epochs"`
	CreatedAt string `json:"created_at"`
}

// Score is the current trust score for an agent.
type Score struct {
	AgentID        string             `json:"agent_id"`
	Overall        float64            `json:"overall"`
	Components     map[string]float64 `json:"components"`
	Tier           string             `json:"tier"`
	LastComputedAt string             `json:"last_computed_at"`
}

// Seal is a signed trust seal as returned by the issue endpoint.
type Seal struct {
	SealID          string      `json:"seal_id"`
	AgentID         string      `json:"agent_id"`
	Tier            string      `json:"tier"`
	ExecutionMode   string      `json:"execution_mode"`
	ScoreSnapshot   interface{} `json:"score_snapshot"`
	IssuedAt        string      `json:"issued_at"`
	ExpiresAt       string      `json:"expires_at"`
	IssuerSignature string      `json:"issuer_signature"`
}

// TrustPath is the result of an endorsement chain search.
type TrustPath struct {
	Found bool     `json:"found"`
	Path  []string `json:"path"`
}

// Validation is the live tier decision for a presented seal.
type Validation struct {
	Valid         bool   `json:"valid"`
	Tier          string `json:"tier"`
	ExecutionMode string `json:"execution_mode"`
}

// Tier names as returned by the API, lowest to highest.
const (
	TierUntrusted = "UNTRUSTED"
	TierBasic     = "BASIC"
	TierVerified  = "VERIFIED"
	TierTrusted   = "TRUSTED"
)

// APIError is a non-2xx response from the trustcore API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("trustcore-sdk: api error %d: %s", e.Status, e.Message)
}
