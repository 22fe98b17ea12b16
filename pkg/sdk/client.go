// Package sdk is the trustcore client library for agent runtimes and
// relying services.
//
// Agent runtimes use it to register identities, report task outcomes, and
// obtain trust seals. Relying services use it to validate presented seals
// and gate execution on the returned tier.
//
// Quick Start:
//
//	client := sdk.NewClient(sdk.Config{
//	    BaseURL: "https://trustcore.yourcompany.com",
//	    APIKey:  os.Getenv("TRUSTCORE_API_KEY"),
//	    AgentID: "acme:prod:worker-7",
//	})
//
//	seal, err := client.IssueSeal(ctx)
//	if seal.Tier == "TRUSTED" {
//	    // autonomous execution permitted
//	}
package sdk

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Config holds the trustcore SDK configuration.
type Config struct {
	// BaseURL is the trustcore API endpoint (required)
	// Examples: "https://trustcore.yourcompany.com", "http://localhost:8080"
	BaseURL string

	// APIKey authenticates requests (required in production)
	APIKey string

	// AgentID identifies this agent instance, in namespace:cluster:entity
	// form. Required for the agent-scoped calls.
	AgentID string

	// Timeout for API calls (default 30s)
	Timeout time.Duration
}

// Client is the trustcore SDK client.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new trustcore SDK client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Register creates this agent's identity with the given base64 Ed25519
// public key.
func (c *Client) Register(ctx context.Context, publicKeyB64 string) (*Agent, error) {
	var out Agent
	err := c.do(ctx, "POST", "/v1/agents", map[string]interface{}{
		"agent_id":   c.config.AgentID,
		"public_key": publicKeyB64,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAgent fetches an agent's identity record.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	var out Agent
	if err := c.do(ctx, "GET", "/v1/agents/"+url.PathEscape(agentID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetScore fetches this agent's current trust score and tier.
func (c *Client) GetScore(ctx context.Context) (*Score, error) {
	var out Score
	err := c.do(ctx, "GET", "/v1/agents/"+url.PathEscape(c.config.AgentID)+"/score", nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ReportTask records a task completion outcome for this agent.
func (c *Client) ReportTask(ctx context.Context, success bool) (*Score, error) {
	var out Score
	err := c.do(ctx, "POST", "/v1/agents/"+url.PathEscape(c.config.AgentID)+"/events", map[string]interface{}{
		"kind":    "task_completion",
		"success": success,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ReportFeedback records a human rating in [1, 5] for this agent.
func (c *Client) ReportFeedback(ctx context.Context, rating int) (*Score, error) {
	var out Score
	err := c.do(ctx, "POST", "/v1/agents/"+url.PathEscape(c.config.AgentID)+"/events", map[string]interface{}{
		"kind":   "user_feedback",
		"rating": rating,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Endorse adds a relationship edge from this agent to another.
func (c *Client) Endorse(ctx context.Context, to, relationshipType string, evidenceRefs []string) error {
	return c.do(ctx, "POST", "/v1/endorsements", map[string]interface{}{
		"from":          c.config.AgentID,
		"to":            to,
		"type":          relationshipType,
		"evidence_refs": evidenceRefs,
	}, nil)
}

// FindTrustPath asks for an endorsement chain between two agents.
func (c *Client) FindTrustPath(ctx context.Context, from, to string) (*TrustPath, error) {
	path := fmt.Sprintf("/v1/trust-path?from=%s&to=%s",
		url.QueryEscape(from), url.QueryEscape(to))
	var out TrustPath
	if err := c.do(ctx, "GET", path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IssueSeal requests a signed trust seal for this agent.
func (c *Client) IssueSeal(ctx context.Context) (*Seal, error) {
	var out Seal
	err := c.do(ctx, "POST", "/v1/agents/"+url.PathEscape(c.config.AgentID)+"/seal", nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateSeal presents a seal for validation and returns the live tier.
// Relying services call this before granting execution. The seal argument
// is the raw seal JSON as received from the presenting agent.
func (c *Client) ValidateSeal(ctx context.Context, sealJSON []byte) (*Validation, error) {
	var out Validation
	err := c.doRaw(ctx, "POST", "/v1/seals/validate", sealJSON, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// EncodeSealHeader packs seal JSON for transport in the X-Trust-Seal header.
func EncodeSealHeader(sealJSON []byte) string {
	return base64.StdEncoding.EncodeToString(sealJSON)
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("trustcore-sdk: failed to marshal request: %w", err)
		}
	}
	return c.doRaw(ctx, method, path, body, out)
}

func (c *Client) doRaw(ctx context.Context, method, path string, body []byte, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, method,
		c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("trustcore-sdk: failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.AgentID != "" {
		httpReq.Header.Set("X-Agent-ID", c.config.AgentID)
	}
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("trustcore-sdk: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("trustcore-sdk: failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
		}
		return &APIError{Status: resp.StatusCode, Message: string(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("trustcore-sdk: failed to parse response: %w", err)
	}
	return nil
}
