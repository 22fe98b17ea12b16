package zkproof

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/trustcore/internal/core"
)

func TestCommitmentService_ProveVerify(t *testing.T) {
	ctx := context.Background()
	svc := NewCommitmentService([]byte("dev-secret"))

	claim := []byte("score>=70")
	witness := []byte("overall=82.5")

	proof, err := svc.Prove(ctx, claim, witness)
	require.NoError(t, err)
	require.NotEmpty(t, proof)

	ok, err := svc.Verify(ctx, proof, append(claim, witness...))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCommitmentService_RejectsTamperedProof(t *testing.T) {
	ctx := context.Background()
	svc := NewCommitmentService([]byte("dev-secret"))

	claim := []byte("score>=70")
	witness := []byte("overall=82.5")
	proof, err := svc.Prove(ctx, claim, witness)
	require.NoError(t, err)

	tampered := make(Proof, len(proof))
	copy(tampered, proof)
	tampered[0] ^= 0xff

	ok, err := svc.Verify(ctx, tampered, append(claim, witness...))
	require.NoError(t, err)
	assert.False(t, ok)

	// A different secret cannot verify the proof either
	other := NewCommitmentService([]byte("prod-secret"))
	ok, err = other.Verify(ctx, proof, append(claim, witness...))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPService_ProveVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/prove":
			json.NewEncoder(w).Encode(map[string]interface{}{"proof": []byte("opaque-blob")})
		case "/v1/verify":
			json.NewEncoder(w).Encode(map[string]interface{}{"valid": true})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	svc := NewHTTPService(srv.URL, time.Second)
	ctx := context.Background()

	proof, err := svc.Prove(ctx, []byte("claim"), []byte("witness"))
	require.NoError(t, err)
	assert.Equal(t, Proof("opaque-blob"), proof)

	ok, err := svc.Verify(ctx, proof, []byte("inputs"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHTTPService_BreakerShieldsFailingBackend(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := NewHTTPService(srv.URL, time.Second)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Prove(ctx, []byte("claim"), []byte("witness"))
		require.Error(t, err)
	}
	tripped := calls.Load()

	// The breaker is open: further calls surface as resolution timeouts
	// without touching the backend
	_, err := svc.Prove(ctx, []byte("claim"), []byte("witness"))
	assert.ErrorIs(t, err, core.ErrResolutionTimeout)
	assert.Equal(t, tripped, calls.Load())
}
