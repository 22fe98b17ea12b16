package resolver

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ocx/trustcore/internal/circuitbreaker"
	"github.com/ocx/trustcore/internal/core"
	"github.com/ocx/trustcore/internal/identity"
)

// HTTPResolver resolves identities against a remote federation registry over
// HTTP. Every call runs under the configured budget; exceeding it surfaces
// as core.ErrResolutionTimeout so callers can retry with backoff. A circuit
// breaker sheds calls once the registry is persistently down, so resolution
// falls back to local state fast instead of burning the budget per request.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

// NewHTTPResolver creates a resolver against baseURL with the given
// per-call budget (default 5s).
func NewHTTPResolver(baseURL string, timeout time.Duration) *HTTPResolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig("federation-registry")),
	}
}

type wireIdentity struct {
	ID         string              `json:"id"`
	PublicKey  []byte              `json:"public_key"`
	KeyHistory []identity.KeyEpoch `json:"key_history"`
	CreatedAt  time.Time           `json:"created_at"`
	Status     string              `json:"status"`
}

func (r *HTTPResolver) Resolve(ctx context.Context, id core.AgentID) (*identity.AgentIdentity, error) {
	var agent *identity.AgentIdentity
	var resolveErr error
	err := r.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		agent, resolveErr = r.resolveOnce(ctx, id)
		// A 404 is a definitive answer from a healthy registry, not an
		// upstream failure; it must not trip the breaker.
		if errors.Is(resolveErr, core.ErrUnknownAgent) {
			return nil
		}
		return resolveErr
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("resolve %s: registry unavailable: %w", id, core.ErrResolutionTimeout)
	}
	return agent, resolveErr
}

func (r *HTTPResolver) resolveOnce(ctx context.Context, id core.AgentID) (*identity.AgentIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/v1/identities/%s", r.baseURL, url.PathEscape(id.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("resolve %s: %w", id, core.ErrResolutionTimeout)
		}
		return nil, fmt.Errorf("resolve %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusNotFound:
		return nil, fmt.Errorf("resolve %s: %w", id, core.ErrUnknownAgent)
	default:
		return nil, fmt.Errorf("resolve %s: registry returned %d", id, resp.StatusCode)
	}

	var wire wireIdentity
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("resolve %s: decode: %w", id, err)
	}
	return &identity.AgentIdentity{
		ID:         core.AgentID(wire.ID),
		PublicKey:  ed25519.PublicKey(wire.PublicKey),
		KeyHistory: wire.KeyHistory,
		CreatedAt:  wire.CreatedAt,
		Status:     identity.AgentStatus(wire.Status),
	}, nil
}

func (r *HTTPResolver) Publish(ctx context.Context, agent *identity.AgentIdentity) error {
	err := r.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		return r.publishOnce(ctx, agent)
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return fmt.Errorf("publish %s: registry unavailable: %w", agent.ID, core.ErrResolutionTimeout)
	}
	return err
}

func (r *HTTPResolver) publishOnce(ctx context.Context, agent *identity.AgentIdentity) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payload, err := json.Marshal(wireIdentity{
		ID:         agent.ID.String(),
		PublicKey:  agent.PublicKey,
		KeyHistory: agent.KeyHistory,
		CreatedAt:  agent.CreatedAt,
		Status:     string(agent.Status),
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/v1/identities", r.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return fmt.Errorf("publish %s: %w", agent.ID, core.ErrResolutionTimeout)
		}
		return fmt.Errorf("publish %s: %w", agent.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("publish %s: registry returned %d", agent.ID, resp.StatusCode)
	}
	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
