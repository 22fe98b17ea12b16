package sdk

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClientAgainst(srv *httptest.Server) *Client {
	return NewClient(Config{
		BaseURL: srv.URL,
		APIKey:  "tc_test.secret",
		AgentID: "acme:prod:worker-7",
	})
}

func TestClient_HeadersAndAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tc_test.secret", r.Header.Get("Authorization"))
		assert.Equal(t, "acme:prod:worker-7", r.Header.Get("X-Agent-ID"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		json.NewEncoder(w).Encode(Score{AgentID: "acme:prod:worker-7", Overall: 42, Tier: TierUntrusted})
	}))
	defer srv.Close()

	score, err := newClientAgainst(srv).GetScore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42.0, score.Overall)
}

func TestClient_ReportTaskPayload(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/agents/acme:prod:worker-7/events", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(Score{Overall: 10})
	}))
	defer srv.Close()

	score, err := newClientAgainst(srv).ReportTask(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 10.0, score.Overall)
	assert.Equal(t, "task_completion", got["kind"])
	assert.Equal(t, true, got["success"])
}

func TestClient_EndorsePayload(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/endorsements", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := newClientAgainst(srv).Endorse(context.Background(), "acme:prod:reviewer", "endorsement", []string{"task-1"})
	require.NoError(t, err)
	assert.Equal(t, "acme:prod:worker-7", got["from"])
	assert.Equal(t, "acme:prod:reviewer", got["to"])
	assert.Equal(t, "endorsement", got["type"])
}

func TestClient_APIErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"error": "agent revoked"})
	}))
	defer srv.Close()

	_, err := newClientAgainst(srv).GetScore(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "agent revoked", apiErr.Message)
}

func TestClient_FindTrustPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "acme:prod:a", r.URL.Query().Get("from"))
		assert.Equal(t, "acme:prod:c", r.URL.Query().Get("to"))
		json.NewEncoder(w).Encode(TrustPath{Found: true, Path: []string{"acme:prod:a", "acme:prod:b", "acme:prod:c"}})
	}))
	defer srv.Close()

	path, err := newClientAgainst(srv).FindTrustPath(context.Background(), "acme:prod:a", "acme:prod:c")
	require.NoError(t, err)
	assert.True(t, path.Found)
	assert.Len(t, path.Path, 3)
}

func validationServer(t *testing.T, v Validation) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/seals/validate" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(v)
	}))
}

func TestSealMiddleware_AllowsSufficientTier(t *testing.T) {
	srv := validationServer(t, Validation{Valid: true, Tier: TierTrusted, ExecutionMode: "AUTONOMOUS"})
	defer srv.Close()

	handler := SealMiddleware(newClientAgainst(srv), TierVerified, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/tasks/run", nil)
	req.Header.Set("X-Trust-Seal", EncodeSealHeader([]byte(`{"seal_id":"s-1"}`)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, TierTrusted, rec.Header().Get("X-Trust-Tier"))
	assert.Equal(t, "AUTONOMOUS", rec.Header().Get("X-Trust-Execution-Mode"))
}

func TestSealMiddleware_RejectsLowTier(t *testing.T) {
	srv := validationServer(t, Validation{Valid: true, Tier: TierBasic, ExecutionMode: "SUPERVISED"})
	defer srv.Close()

	handler := SealMiddleware(newClientAgainst(srv), TierVerified, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for a low tier")
	}))

	req := httptest.NewRequest("POST", "/tasks/run", nil)
	req.Header.Set("X-Trust-Seal", EncodeSealHeader([]byte(`{"seal_id":"s-1"}`)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, TierBasic, rec.Header().Get("X-Trust-Tier"))
}

func TestSealMiddleware_MissingOrBadHeader(t *testing.T) {
	srv := validationServer(t, Validation{Valid: true, Tier: TierTrusted})
	defer srv.Close()

	handler := SealMiddleware(newClientAgainst(srv), TierUntrusted, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/tasks/run", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest("POST", "/tasks/run", nil)
	req.Header.Set("X-Trust-Seal", "%%% not base64 %%%")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEncodeSealHeader(t *testing.T) {
	raw := []byte(`{"seal_id":"s-1"}`)
	decoded, err := base64.StdEncoding.DecodeString(EncodeSealHeader(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}
