/*
SPIFFE Attestation
Binds agent identities to workload SVIDs issued by a SPIRE agent, so that
registration can require proof the caller runs inside the trust domain.
*/

package identity

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/workloadapi"

	"github.com/ocx/trustcore/internal/core"
)

// Attestor checks that an agent presenting itself for registration holds a
// workload identity acceptable to the trust domain. Implementations return
// an opaque attestation fingerprint recorded alongside the identity.
type Attestor interface {
	Attest(ctx context.Context, id core.AgentID) (string, error)
	Close() error
}

// SPIFFEAttestor attests agents against SVIDs fetched from a SPIRE agent.
type SPIFFEAttestor struct {
	source      *workloadapi.X509Source
	trustDomain string
}

// NewSPIFFEAttestor connects to the SPIRE workload API at socketPath.
func NewSPIFFEAttestor(socketPath, trustDomain string) (*SPIFFEAttestor, error) {
	// Bounded so startup does not hang when no SPIRE agent is running.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	source, err := workloadapi.NewX509Source(
		ctx,
		workloadapi.WithClientOptions(workloadapi.WithAddr(socketPath)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SPIRE: %w", err)
	}

	slog.Info("Connected to SPIRE agent", "socket_path", socketPath, "trust_domain", trustDomain)
	return &SPIFFEAttestor{source: source, trustDomain: trustDomain}, nil
}

// Attest verifies the current workload SVID matches the SPIFFE ID derived
// from the agent ID and returns a fingerprint of the SVID certificate.
func (a *SPIFFEAttestor) Attest(ctx context.Context, id core.AgentID) (string, error) {
	if a.trustDomain != "" && id.Namespace() != a.trustDomain {
		return "", fmt.Errorf("agent %s is outside trust domain %s", id, a.trustDomain)
	}

	expected, err := id.SPIFFEID()
	if err != nil {
		return "", fmt.Errorf("invalid SPIFFE ID: %w", err)
	}

	svid, err := a.source.GetX509SVID()
	if err != nil {
		return "", fmt.Errorf("failed to get SVID: %w", err)
	}

	if svid.ID.String() != expected.String() {
		return "", fmt.Errorf("SPIFFE ID mismatch: expected %s, got %s", expected, svid.ID)
	}

	sum := sha256.Sum256(svid.Certificates[0].Raw)
	fingerprint := hex.EncodeToString(sum[:8])

	slog.Info("Attested agent workload", "agent_id", id, "fingerprint", fingerprint)
	return fingerprint, nil
}

// TLSConfig returns an mTLS client config backed by the workload SVID, for
// calls to other services inside the trust domain.
func (a *SPIFFEAttestor) TLSConfig() (*tls.Config, error) {
	return tlsconfig.MTLSClientConfig(a.source, a.source, tlsconfig.AuthorizeAny()), nil
}

// Close cleanup
func (a *SPIFFEAttestor) Close() error {
	return a.source.Close()
}

// Example SPIFFE IDs:
// spiffe://trustcore.local/prod/search-agent
// spiffe://trustcore.local/prod/billing-bot
