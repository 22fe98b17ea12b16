package seal

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// Signer signs and verifies trust seals on behalf of the issuer. Ed25519:
// deterministic, fast, fixed 64-byte signatures.
type Signer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
}

// NewSigner generates a fresh issuer key pair.
func NewSigner() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("issuer key generation failed: %w", err)
	}
	return &Signer{privateKey: priv, publicKey: pub}, nil
}

// NewSignerFromKey wraps an existing issuer private key.
func NewSignerFromKey(priv ed25519.PrivateKey) *Signer {
	return &Signer{
		privateKey: priv,
		publicKey:  priv.Public().(ed25519.PublicKey),
	}
}

// Sign signs the given canonical bytes.
func (s *Signer) Sign(data []byte) []byte {
	return ed25519.Sign(s.privateKey, data)
}

// Verify checks a signature over data against the issuer public key.
func (s *Signer) Verify(data, signature []byte) bool {
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(s.publicKey, data, signature)
}

// PublicKeyBytes returns the raw issuer public key for distribution.
func (s *Signer) PublicKeyBytes() []byte {
	return []byte(s.publicKey)
}

// EncodePublicKeyPEM returns the PEM-encoded issuer public key so relying
// parties can pin it.
func (s *Signer) EncodePublicKeyPEM() (string, error) {
	derBytes, err := x509.MarshalPKIXPublicKey(s.publicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal issuer public key: %w", err)
	}
	pemBlock := &pem.Block{Type: "PUBLIC KEY", Bytes: derBytes}
	return string(pem.EncodeToMemory(pemBlock)), nil
}
