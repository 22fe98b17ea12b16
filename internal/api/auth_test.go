package api

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyManager_CreateKeyFormat(t *testing.T) {
	km := NewKeyManager()

	key, fullKey, err := km.CreateKey("ci-pipeline", []string{"score:read"})
	require.NoError(t, err)

	// tc_<16 hex chars>.<48 hex chars>
	assert.Regexp(t, regexp.MustCompile(`^tc_[0-9a-f]{16}\.[0-9a-f]{48}$`), fullKey)
	assert.Equal(t, "ci-pipeline", key.Name)
	assert.Equal(t, []string{"score:read"}, key.Scopes)
	assert.True(t, key.IsActive)
	assert.NotContains(t, fullKey, key.KeyHash)
}

func TestKeyManager_ValidateRoundTrip(t *testing.T) {
	km := NewKeyManager()
	created, fullKey, err := km.CreateKey("ops", nil)
	require.NoError(t, err)

	got, err := km.Validate(fullKey)
	require.NoError(t, err)
	assert.Equal(t, created.KeyID, got.KeyID)
}

func TestKeyManager_ValidateRejectsBadKeys(t *testing.T) {
	km := NewKeyManager()
	_, fullKey, err := km.CreateKey("ops", nil)
	require.NoError(t, err)

	cases := []struct {
		name string
		key  string
	}{
		{"wrong prefix", "sk_deadbeef.cafe"},
		{"missing secret", "tc_deadbeefdeadbeef"},
		{"unknown key id", "tc_0000000000000000.000000000000000000000000000000000000000000000000"},
		{"tampered secret", fullKey[:len(fullKey)-1] + "0"},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := km.Validate(tc.key)
			assert.Error(t, err)
		})
	}
}

func TestKeyManager_RevokedKeyRejected(t *testing.T) {
	km := NewKeyManager()
	created, fullKey, err := km.CreateKey("ops", nil)
	require.NoError(t, err)

	km.Revoke(created.KeyID)

	_, err = km.Validate(fullKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inactive")
}

func TestKeyManager_ExpiredKeyRejected(t *testing.T) {
	km := NewKeyManager()
	created, fullKey, err := km.CreateKey("ops", nil)
	require.NoError(t, err)

	past := time.Now().Add(-time.Minute)
	created.ExpiresAt = &past

	_, err = km.Validate(fullKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestAuthMiddleware_OpenWhenNoKeys(t *testing.T) {
	km := NewKeyManager()
	handler := km.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/v1/agents", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_RequiresBearerOnceKeysExist(t *testing.T) {
	km := NewKeyManager()
	_, fullKey, err := km.CreateKey("ops", nil)
	require.NoError(t, err)

	handler := km.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(auth string) int {
		req := httptest.NewRequest("GET", "/v1/agents", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, do(""))
	assert.Equal(t, http.StatusUnauthorized, do("Bearer tc_bogus.bogus"))
	assert.Equal(t, http.StatusOK, do("Bearer "+fullKey))
}
