package api

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// APIKey is a stored credential. Only the bcrypt hash of the secret is kept.
type APIKey struct {
	KeyID     string     `json:"key_id"`
	Name      string     `json:"name"`
	KeyHash   string     `json:"-"`
	Scopes    []string   `json:"scopes"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// KeyManager issues and validates API keys in the tc_<key_id>.<secret>
// format. The key ID is the lookup handle; only the secret is hashed.
type KeyManager struct {
	mu   sync.RWMutex
	keys map[string]*APIKey // keyID -> key
}

// NewKeyManager creates an empty key manager.
func NewKeyManager() *KeyManager {
	return &KeyManager{keys: make(map[string]*APIKey)}
}

// CreateKey mints a new API key and returns the record plus the full key
// string. The full key is shown once and never recoverable afterwards.
func (km *KeyManager) CreateKey(name string, scopes []string) (*APIKey, string, error) {
	idBytes := make([]byte, 8)
	rand.Read(idBytes)
	keyID := hex.EncodeToString(idBytes) // 16 chars

	secretBytes := make([]byte, 24)
	rand.Read(secretBytes)
	secret := hex.EncodeToString(secretBytes) // 48 chars

	fullKey := fmt.Sprintf("tc_%s.%s", keyID, secret)

	// Hash ONLY the secret part. The ID is used for lookup.
	secretHash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	key := &APIKey{
		KeyID:     keyID,
		Name:      name,
		KeyHash:   string(secretHash),
		Scopes:    scopes,
		IsActive:  true,
		CreatedAt: time.Now(),
	}

	km.mu.Lock()
	km.keys[keyID] = key
	km.mu.Unlock()

	return key, fullKey, nil
}

// Validate checks a full key string and returns the stored record.
func (km *KeyManager) Validate(fullKey string) (*APIKey, error) {
	if !strings.HasPrefix(fullKey, "tc_") {
		return nil, errors.New("invalid key format")
	}
	parts := strings.Split(strings.TrimPrefix(fullKey, "tc_"), ".")
	if len(parts) != 2 {
		return nil, errors.New("invalid key format")
	}
	keyID, secret := parts[0], parts[1]

	km.mu.RLock()
	key, ok := km.keys[keyID]
	km.mu.RUnlock()
	if !ok {
		return nil, errors.New("invalid api key")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(secret)); err != nil {
		return nil, errors.New("invalid api key secret")
	}
	if !key.IsActive {
		return nil, errors.New("api key inactive")
	}
	if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
		return nil, errors.New("api key expired")
	}
	return key, nil
}

// Revoke deactivates a key by ID.
func (km *KeyManager) Revoke(keyID string) {
	km.mu.Lock()
	defer km.mu.Unlock()
	if key, ok := km.keys[keyID]; ok {
		key.IsActive = false
	}
}

// AuthMiddleware rejects requests without a valid Authorization bearer key.
// When the manager holds no keys at all, auth is open (local development).
func (km *KeyManager) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		km.mu.RLock()
		empty := len(km.keys) == 0
		km.mu.RUnlock()
		if empty {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if _, err := km.Validate(token); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
