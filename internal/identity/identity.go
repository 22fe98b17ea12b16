package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/ocx/trustcore/internal/core"
)

// AgentStatus is the lifecycle state of an identity. Transitions happen only
// through the revocation registry; no other component mutates it.
type AgentStatus string

const (
	StatusActive      AgentStatus = "ACTIVE"
	StatusQuarantined AgentStatus = "QUARANTINED"
	StatusRevoked     AgentStatus = "REVOKED"
)

// KeyEpoch is one retired verification key. KeyHistory is append-only — old
// epochs are needed to verify historical signatures during audits and are
// never removed.
type KeyEpoch struct {
	PublicKey ed25519.PublicKey `json:"public_key"`
	RetiredAt time.Time         `json:"retired_at"`
}

// AgentIdentity represents one principal: an agent, service, or user.
type AgentIdentity struct {
	ID         core.AgentID      `json:"id"`
	PublicKey  ed25519.PublicKey `json:"public_key"`
	KeyHistory []KeyEpoch        `json:"key_history"`
	CreatedAt  time.Time         `json:"created_at"`
	Status     AgentStatus       `json:"status"`
}

// New creates an Active identity with the given verification key.
func New(id core.AgentID, publicKey ed25519.PublicKey, now time.Time) (*AgentIdentity, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(publicKey))
	}
	return &AgentIdentity{
		ID:        id,
		PublicKey: append(ed25519.PublicKey(nil), publicKey...),
		CreatedAt: now,
		Status:    StatusActive,
	}, nil
}

// RotateKey retires the current public key into KeyHistory and installs the
// new one. Past epochs are never mutated.
func (a *AgentIdentity) RotateKey(newKey ed25519.PublicKey, now time.Time) error {
	if len(newKey) != ed25519.PublicKeySize {
		return fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(newKey))
	}
	a.KeyHistory = append(a.KeyHistory, KeyEpoch{
		PublicKey: a.PublicKey,
		RetiredAt: now,
	})
	a.PublicKey = append(ed25519.PublicKey(nil), newKey...)
	return nil
}

// Clone returns a deep copy so callers can't mutate store-owned state.
func (a *AgentIdentity) Clone() *AgentIdentity {
	cp := *a
	cp.PublicKey = append(ed25519.PublicKey(nil), a.PublicKey...)
	cp.KeyHistory = make([]KeyEpoch, len(a.KeyHistory))
	for i, e := range a.KeyHistory {
		cp.KeyHistory[i] = KeyEpoch{
			PublicKey: append(ed25519.PublicKey(nil), e.PublicKey...),
			RetiredAt: e.RetiredAt,
		}
	}
	return &cp
}

// GenerateKeypair creates a fresh Ed25519 key pair for a new identity or a
// recovery key epoch.
func GenerateKeypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("ed25519 key generation failed: %w", err)
	}
	return pub, priv, nil
}
