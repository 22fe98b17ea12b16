// Package zkproof consumes an external zero-knowledge proof service. The
// engine never inspects proof internals — prove and verify are opaque calls
// against whatever circuit backend the deployment runs.
package zkproof

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ocx/trustcore/internal/circuitbreaker"
	"github.com/ocx/trustcore/internal/core"
)

// Proof is an opaque proof blob produced by the external service.
type Proof []byte

// Service is the prove/verify boundary.
type Service interface {
	Prove(ctx context.Context, claim, witness []byte) (Proof, error)
	Verify(ctx context.Context, proof Proof, publicInputs []byte) (bool, error)
}

// HTTPService calls a remote proof service. Deadline overruns surface as
// core.ErrResolutionTimeout so callers can apply the same retry policy as
// for identity resolution.
type HTTPService struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

// NewHTTPService creates a proof-service client with the given per-call
// budget (default 10s; proving is slow).
func NewHTTPService(baseURL string, timeout time.Duration) *HTTPService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPService{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig("proof-service")),
	}
}

func (s *HTTPService) Prove(ctx context.Context, claim, witness []byte) (Proof, error) {
	var out struct {
		Proof []byte `json:"proof"`
	}
	err := s.post(ctx, "/v1/prove", map[string]interface{}{
		"claim":   claim,
		"witness": witness,
	}, &out)
	if err != nil {
		return nil, err
	}
	return Proof(out.Proof), nil
}

func (s *HTTPService) Verify(ctx context.Context, proof Proof, publicInputs []byte) (bool, error) {
	var out struct {
		Valid bool `json:"valid"`
	}
	err := s.post(ctx, "/v1/verify", map[string]interface{}{
		"proof":         []byte(proof),
		"public_inputs": publicInputs,
	}, &out)
	if err != nil {
		return false, err
	}
	return out.Valid, nil
}

func (s *HTTPService) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	err := s.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		return s.postOnce(ctx, path, payload, out)
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return fmt.Errorf("proof service %s: backend unavailable: %w", path, core.ErrResolutionTimeout)
	}
	return err
}

func (s *HTTPService) postOnce(ctx context.Context, path string, payload interface{}, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		var t interface{ Timeout() bool }
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &t) && t.Timeout()) {
			return fmt.Errorf("proof service %s: %w", path, core.ErrResolutionTimeout)
		}
		return fmt.Errorf("proof service %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proof service %s: returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CommitmentService is a local stand-in for development and tests. Proofs
// are HMAC commitments over claim+witness — verifiable by this service only,
// no zero-knowledge properties. Never deploy as a real backend.
type CommitmentService struct {
	secret []byte
}

// NewCommitmentService creates a local commitment-based stub.
func NewCommitmentService(secret []byte) *CommitmentService {
	return &CommitmentService{secret: secret}
}

func (s *CommitmentService) Prove(_ context.Context, claim, witness []byte) (Proof, error) {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(claim)
	mac.Write(witness)
	return Proof(mac.Sum(nil)), nil
}

func (s *CommitmentService) Verify(_ context.Context, proof Proof, publicInputs []byte) (bool, error) {
	// Public inputs for the stub are claim||witness; constant-time compare.
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(publicInputs)
	return hmac.Equal([]byte(proof), mac.Sum(nil)), nil
}
