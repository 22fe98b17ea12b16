package identity

import "crypto/ed25519"

// Verifier checks detached Ed25519 signatures. Stateless and pure: malformed
// input never panics, it just fails verification. ed25519.Verify is
// constant-time in the signature comparison, which keeps the primitive free
// of timing side-channels.
type Verifier struct{}

// NewVerifier returns a signature verifier.
func NewVerifier() *Verifier { return &Verifier{} }

// Verify reports whether signature is a valid detached signature of message
// under publicKey. Returns false (never an error, never a panic) for keys or
// signatures of the wrong length.
func (v *Verifier) Verify(publicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}

// VerifyAnyEpoch checks the signature against the identity's current key and
// every retired epoch. Needed when auditing artifacts signed before a key
// rotation.
func (v *Verifier) VerifyAnyEpoch(agent *AgentIdentity, message, signature []byte) bool {
	if v.Verify(agent.PublicKey, message, signature) {
		return true
	}
	for _, epoch := range agent.KeyHistory {
		if v.Verify(epoch.PublicKey, message, signature) {
			return true
		}
	}
	return false
}
