package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/trustcore/internal/audit"
	"github.com/ocx/trustcore/internal/core"
	"github.com/ocx/trustcore/internal/engine"
	"github.com/ocx/trustcore/internal/graph"
	"github.com/ocx/trustcore/internal/identity"
	"github.com/ocx/trustcore/internal/revocation"
	"github.com/ocx/trustcore/internal/score"
	"github.com/ocx/trustcore/internal/seal"
	"github.com/ocx/trustcore/internal/webhooks"
	"github.com/ocx/trustcore/internal/zkproof"
)

type apiFixture struct {
	srv    *httptest.Server
	clock  *core.ManualClock
	proofs *zkproof.CommitmentService
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	clock := core.NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	identities := identity.NewMemoryStore()

	scores, err := score.NewEngine(score.DefaultConfig(), score.NewMemoryStore(), identities, clock)
	require.NoError(t, err)

	merkleLog := audit.NewMerkleLog()
	registry := revocation.NewRegistry(revocation.DefaultConfig(), identities, scores, merkleLog, clock)

	signer, err := seal.NewSigner()
	require.NoError(t, err)
	issuer := seal.NewIssuer(identities, scores, signer, clock, 15*time.Minute)

	proofs := zkproof.NewCommitmentService([]byte("fixture-secret"))
	eng := engine.NewTrustEngine(engine.Config{}, identities, scores, graph.New(), registry, issuer, merkleLog, clock, engine.Options{
		Proofs: proofs,
	})

	server := NewServer(eng, webhooks.NewRegistry(), nil, nil)
	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)
	return &apiFixture{srv: srv, clock: clock, proofs: proofs}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	// Distinct caller per test run keeps rate-limit windows separate
	req.Header.Set("X-Agent-ID", t.Name())

	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	// Object bodies only; list endpoints are asserted on status alone
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		require.NoError(t, json.Unmarshal(trimmed, &out), "body: %s", raw)
	}
	return resp.StatusCode, out
}

func (f *apiFixture) registerAgent(t *testing.T, id string) ed25519.PrivateKey {
	t.Helper()
	pub, priv, err := identity.GenerateKeypair()
	require.NoError(t, err)
	status, body := f.do(t, "POST", "/v1/agents", map[string]string{
		"agent_id":   id,
		"public_key": base64.StdEncoding.EncodeToString(pub),
	})
	require.Equal(t, http.StatusCreated, status, "register %s: %v", id, body)
	return priv
}

func TestAPI_Health(t *testing.T) {
	f := newAPIFixture(t)
	status, body := f.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "trustcore", body["service"])
}

func TestAPI_RegisterAndFetchAgent(t *testing.T) {
	f := newAPIFixture(t)
	f.registerAgent(t, "acme:prod:worker-1")

	status, body := f.do(t, "GET", "/v1/agents/acme:prod:worker-1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "acme:prod:worker-1", body["agent_id"])
	assert.Equal(t, "ACTIVE", body["status"])
	assert.Equal(t, float64(1), body["key_epochs"])
}

func TestAPI_RegisterRejectsBadInput(t *testing.T) {
	f := newAPIFixture(t)

	status, _ := f.do(t, "POST", "/v1/agents", map[string]string{
		"agent_id":   "not-a-valid-id",
		"public_key": base64.StdEncoding.EncodeToString(make([]byte, 32)),
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, "POST", "/v1/agents", map[string]string{
		"agent_id":   "acme:prod:x",
		"public_key": "not base64!!!",
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_UnknownAgentIs404(t *testing.T) {
	f := newAPIFixture(t)
	status, _ := f.do(t, "GET", "/v1/agents/acme:prod:ghost", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, "GET", "/v1/agents/acme:prod:ghost/score", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_ScoreFlow(t *testing.T) {
	f := newAPIFixture(t)
	f.registerAgent(t, "acme:prod:worker-1")

	status, body := f.do(t, "GET", "/v1/agents/acme:prod:worker-1/score", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0.0, body["overall"])
	assert.Equal(t, "UNTRUSTED", body["tier"])

	for i := 0; i < 3; i++ {
		status, body = f.do(t, "POST", "/v1/agents/acme:prod:worker-1/events", map[string]interface{}{
			"kind":    "task_completion",
			"success": true,
		})
		require.Equal(t, http.StatusOK, status)
	}
	assert.InDelta(t, 15.0, body["overall"].(float64), 1e-9)
	components := body["components"].(map[string]interface{})
	assert.InDelta(t, 30.0, components["behavioral"].(float64), 1e-9)
}

func TestAPI_RecordEventValidation(t *testing.T) {
	f := newAPIFixture(t)
	f.registerAgent(t, "acme:prod:worker-1")

	// task_completion without success flag
	status, _ := f.do(t, "POST", "/v1/agents/acme:prod:worker-1/events", map[string]interface{}{
		"kind": "task_completion",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	// out-of-range feedback rating
	status, _ = f.do(t, "POST", "/v1/agents/acme:prod:worker-1/events", map[string]interface{}{
		"kind":   "user_feedback",
		"rating": 9,
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, "POST", "/v1/agents/acme:prod:worker-1/events", map[string]interface{}{
		"kind": "no_such_kind",
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_SignatureVerification(t *testing.T) {
	f := newAPIFixture(t)
	priv := f.registerAgent(t, "acme:prod:worker-1")

	msg := []byte("task manifest")
	sig := ed25519.Sign(priv, msg)

	status, body := f.do(t, "POST", "/v1/agents/acme:prod:worker-1/verify", map[string]string{
		"message":   base64.StdEncoding.EncodeToString(msg),
		"signature": base64.StdEncoding.EncodeToString(sig),
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["valid"])

	status, body = f.do(t, "POST", "/v1/agents/acme:prod:worker-1/verify", map[string]string{
		"message":   base64.StdEncoding.EncodeToString(msg),
		"signature": base64.StdEncoding.EncodeToString(make([]byte, ed25519.SignatureSize)),
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["valid"])
}

func TestAPI_ProofSubmission(t *testing.T) {
	f := newAPIFixture(t)
	f.registerAgent(t, "acme:prod:prover-1")

	claim, witness := []byte("model-hash"), []byte("weights")
	proof, err := f.proofs.Prove(context.Background(), claim, witness)
	require.NoError(t, err)
	inputs := append(append([]byte{}, claim...), witness...)

	status, body := f.do(t, "POST", "/v1/agents/acme:prod:prover-1/proofs", map[string]string{
		"proof":         base64.StdEncoding.EncodeToString(proof),
		"public_inputs": base64.StdEncoding.EncodeToString(inputs),
	})
	require.Equal(t, http.StatusOK, status, "body: %v", body)
	assert.Equal(t, true, body["valid"])

	status, body = f.do(t, "POST", "/v1/agents/acme:prod:prover-1/proofs", map[string]string{
		"proof":         base64.StdEncoding.EncodeToString(proof),
		"public_inputs": base64.StdEncoding.EncodeToString([]byte("other-inputs")),
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["valid"])

	status, _ = f.do(t, "POST", "/v1/agents/acme:prod:prover-1/proofs", map[string]string{
		"proof":         "not base64!",
		"public_inputs": base64.StdEncoding.EncodeToString(inputs),
	})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_EndorsementsAndTrustPath(t *testing.T) {
	f := newAPIFixture(t)
	f.registerAgent(t, "acme:prod:a")
	f.registerAgent(t, "acme:prod:b")
	f.registerAgent(t, "acme:prod:c")

	for _, pair := range [][2]string{{"acme:prod:a", "acme:prod:b"}, {"acme:prod:b", "acme:prod:c"}} {
		status, body := f.do(t, "POST", "/v1/endorsements", map[string]interface{}{
			"from": pair[0],
			"to":   pair[1],
			"type": string(graph.Endorsement),
		})
		require.Equal(t, http.StatusCreated, status, "endorse %v: %v", pair, body)
		assert.InDelta(t, 0.8, body["strength"].(float64), 1e-9)
	}

	// Unknown relationship types are rejected before touching the graph
	status, _ := f.do(t, "POST", "/v1/endorsements", map[string]interface{}{
		"from": "acme:prod:a",
		"to":   "acme:prod:b",
		"type": "friendship",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := f.do(t, "GET", "/v1/trust-path?from=acme:prod:a&to=acme:prod:c", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["found"])
	assert.Equal(t, []interface{}{"acme:prod:a", "acme:prod:b", "acme:prod:c"}, body["path"])

	status, body = f.do(t, "GET", "/v1/trust-weight?from=acme:prod:a&to=acme:prod:b", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 0.8, body["weight"].(float64), 1e-9)
}

func TestAPI_SealIssueAndValidate(t *testing.T) {
	f := newAPIFixture(t)
	f.registerAgent(t, "acme:prod:worker-1")

	status, sealBody := f.do(t, "POST", "/v1/agents/acme:prod:worker-1/seal", nil)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "UNTRUSTED", sealBody["tier"])
	assert.Equal(t, "AUDIT_ONLY", sealBody["execution_mode"])

	// Round-trip the issued seal through validation
	raw := map[string]interface{}{
		"seal_id":          sealBody["seal_id"],
		"agent_id":         sealBody["agent_id"],
		"tier":             0,
		"score_snapshot":   sealBody["score_snapshot"],
		"issued_at":        sealBody["issued_at"],
		"expires_at":       sealBody["expires_at"],
		"issuer_signature": sealBody["issuer_signature"],
	}
	status, body := f.do(t, "POST", "/v1/seals/validate", raw)
	require.Equal(t, http.StatusOK, status, "validate: %v", body)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "UNTRUSTED", body["tier"])
}

func TestAPI_LifecycleEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.registerAgent(t, "acme:prod:worker-1")

	status, _ := f.do(t, "POST", "/v1/agents/acme:prod:worker-1/quarantine", map[string]string{
		"reason":   string(revocation.ReasonAnomalousBehavior),
		"severity": string(revocation.SeverityManualReview),
	})
	require.Equal(t, http.StatusOK, status)

	// Quarantining an already-quarantined agent is an illegal transition
	status, _ = f.do(t, "POST", "/v1/agents/acme:prod:worker-1/quarantine", map[string]string{
		"reason":   string(revocation.ReasonAnomalousBehavior),
		"severity": string(revocation.SeverityManualReview),
	})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = f.do(t, "POST", "/v1/agents/acme:prod:worker-1/revoke", map[string]string{
		"reason": string(revocation.ReasonKeyCompromise),
	})
	require.Equal(t, http.StatusOK, status)

	// Revoked agents are forbidden from scoring reads
	status, _ = f.do(t, "GET", "/v1/agents/acme:prod:worker-1/score", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := f.do(t, "GET", "/v1/agents/acme:prod:worker-1/revocations", nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotNil(t, body["active"])

	status, body = f.do(t, "GET", "/v1/agents/acme:prod:worker-1/audit", nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["events"])

	status, body = f.do(t, "GET", "/v1/audit/root", nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["root"])
}

func TestAPI_RecoverEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.registerAgent(t, "acme:prod:worker-1")

	status, _ := f.do(t, "POST", "/v1/agents/acme:prod:worker-1/revoke", map[string]string{
		"reason": string(revocation.ReasonKeyCompromise),
	})
	require.Equal(t, http.StatusOK, status)

	steps := map[string]string{
		string(revocation.StepBehaviorReassessment):  "report-811",
		string(revocation.StepComplianceRemediation): "ticket-204",
		string(revocation.StepSecurityAudit):         "audit-2025-06",
		string(revocation.StepPeerReview):            "approved-by-ops",
	}
	status, body := f.do(t, "POST", "/v1/agents/acme:prod:worker-1/recover", map[string]interface{}{
		"steps": steps,
		"actor": "ops",
	})
	require.Equal(t, http.StatusOK, status, "recover: %v", body)

	// The fresh private key comes back exactly once
	privRaw, err := base64.StdEncoding.DecodeString(body["private_key"].(string))
	require.NoError(t, err)
	assert.Len(t, privRaw, ed25519.PrivateKeySize)

	status, agent := f.do(t, "GET", "/v1/agents/acme:prod:worker-1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ACTIVE", agent["status"])
}

func TestAPI_WebhookManagement(t *testing.T) {
	f := newAPIFixture(t)

	status, created := f.do(t, "POST", "/v1/webhooks", map[string]interface{}{
		"url":    "https://hooks.example.com/trust",
		"events": []string{string(webhooks.EventQuarantined)},
	})
	require.Equal(t, http.StatusCreated, status)
	id := created["id"].(string)
	require.NotEmpty(t, id)

	status, _ = f.do(t, "GET", "/v1/webhooks", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = f.do(t, "DELETE", "/v1/webhooks/"+id, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = f.do(t, "DELETE", "/v1/webhooks/"+id, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_KeyRotation(t *testing.T) {
	f := newAPIFixture(t)
	f.registerAgent(t, "acme:prod:worker-1")

	pub, _, err := identity.GenerateKeypair()
	require.NoError(t, err)
	status, _ := f.do(t, "POST", "/v1/agents/acme:prod:worker-1/rotate", map[string]string{
		"public_key": base64.StdEncoding.EncodeToString(pub),
	})
	require.Equal(t, http.StatusOK, status)

	status, body := f.do(t, "GET", "/v1/agents/acme:prod:worker-1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["key_epochs"])
	assert.Equal(t, base64.StdEncoding.EncodeToString(pub), body["public_key"])
}
