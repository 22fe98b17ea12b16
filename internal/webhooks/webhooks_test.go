package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterValidation(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register(&Subscription{Events: []EventType{EventScoreChanged}}))
	assert.Error(t, r.Register(&Subscription{URL: "https://example.com/hook"}))

	sub := &Subscription{URL: "https://example.com/hook", Events: []EventType{EventScoreChanged}}
	require.NoError(t, r.Register(sub))
	assert.NotEmpty(t, sub.ID)
	assert.True(t, sub.Active)
}

func TestRegistry_SubscriberFiltering(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Subscription{
		URL:    "https://example.com/scores",
		Events: []EventType{EventScoreChanged},
	}))
	require.NoError(t, r.Register(&Subscription{
		URL:    "https://example.com/lifecycle",
		Events: []EventType{EventQuarantined, EventRevoked},
	}))

	assert.Len(t, r.GetSubscribers(EventScoreChanged), 1)
	assert.Len(t, r.GetSubscribers(EventRevoked), 1)
	assert.Empty(t, r.GetSubscribers(EventSealIssued))
}

func TestRegistry_MarkFailedDisablesAfterTen(t *testing.T) {
	r := NewRegistry()
	sub := &Subscription{URL: "https://example.com/hook", Events: []EventType{EventScoreChanged}}
	require.NoError(t, r.Register(sub))

	for i := 0; i < 9; i++ {
		r.MarkFailed(sub.ID)
	}
	assert.Len(t, r.GetSubscribers(EventScoreChanged), 1, "still active at 9 failures")

	r.MarkFailed(sub.ID)
	assert.Empty(t, r.GetSubscribers(EventScoreChanged), "disabled at 10 failures")
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	sub := &Subscription{URL: "https://example.com/hook", Events: []EventType{EventScoreChanged}}
	require.NoError(t, r.Register(sub))
	require.NoError(t, r.Unregister(sub.ID))
	assert.Empty(t, r.GetSubscribers(EventScoreChanged))
	assert.Error(t, r.Unregister("wh-nonexistent"))
}

func TestSignPayload_HMACSHA256(t *testing.T) {
	payload := []byte(`{"agent_id":"acme:prod:a"}`)
	secret := "s3cret"

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, expected, SignPayload(payload, secret))
}

// ============================================================================
// DISPATCHER DELIVERY TESTS
// ============================================================================

func TestDispatcher_DeliversSignedEvent(t *testing.T) {
	var mu sync.Mutex
	var gotBody []byte
	var gotHeaders http.Header
	received := make(chan struct{}, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		mu.Lock()
		gotBody = body
		gotHeaders = req.Header.Clone()
		mu.Unlock()
		received <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := NewRegistry()
	require.NoError(t, registry.Register(&Subscription{
		URL:    server.URL,
		Events: []EventType{EventQuarantined},
		Secret: "hook-secret",
	}))

	d := NewDispatcher(registry, 2)
	defer d.Shutdown()

	d.Emit(EventQuarantined, "acme:prod:suspect", map[string]interface{}{"reason": "ANOMALOUS_BEHAVIOR"})

	select {
	case <-received:
	case <-time.After(3 * time.Second):
		t.Fatal("webhook never delivered")
	}

	mu.Lock()
	defer mu.Unlock()

	var event Event
	require.NoError(t, json.Unmarshal(gotBody, &event))
	assert.Equal(t, EventQuarantined, event.Type)
	assert.Equal(t, "acme:prod:suspect", event.AgentID)

	assert.Equal(t, string(EventQuarantined), gotHeaders.Get("X-Trustcore-Event-Type"))
	assert.Equal(t, "sha256="+SignPayload(gotBody, "hook-secret"), gotHeaders.Get("X-Trustcore-Signature"))
}

func TestDispatcher_AgentScopedSubscription(t *testing.T) {
	var count int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		mu.Lock()
		count++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := NewRegistry()
	require.NoError(t, registry.Register(&Subscription{
		URL:     server.URL,
		Events:  []EventType{EventScoreChanged},
		AgentID: "acme:prod:mine",
	}))

	d := NewDispatcher(registry, 2)

	d.Emit(EventScoreChanged, "acme:prod:other", nil)
	d.Emit(EventScoreChanged, "acme:prod:mine", nil)
	d.Shutdown() // drains the queue

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count, "scoped subscription sees only its own agent")
}
