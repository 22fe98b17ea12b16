package sdk

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
)

// tierRank orders tiers for minimum-tier comparisons.
var tierRank = map[string]int{
	TierUntrusted: 0,
	TierBasic:     1,
	TierVerified:  2,
	TierTrusted:   3,
}

// SealMiddleware is HTTP middleware for relying services: it requires every
// request to present a trust seal in the X-Trust-Seal header (base64 seal
// JSON), validates it against trustcore, and rejects callers below minTier.
//
// The validated live tier and execution mode are exposed to downstream
// handlers via the X-Trust-Tier and X-Trust-Execution-Mode response headers.
//
// Usage with standard net/http:
//
//	mux.Handle("/tasks/", sdk.SealMiddleware(client, sdk.TierVerified, taskHandler))
//
// Usage with Gorilla Mux:
//
//	router.Use(sdk.SealMiddlewareFunc(client, sdk.TierVerified))
func SealMiddleware(client *Client, minTier string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("X-Trust-Seal")
		if header == "" {
			writeDenied(w, http.StatusUnauthorized, "missing X-Trust-Seal header")
			return
		}

		sealJSON, err := base64.StdEncoding.DecodeString(header)
		if err != nil {
			writeDenied(w, http.StatusBadRequest, "X-Trust-Seal must be base64 seal JSON")
			return
		}

		validation, err := client.ValidateSeal(r.Context(), sealJSON)
		if err != nil {
			slog.Warn("Seal validation failed", "error", err)
			writeDenied(w, http.StatusForbidden, "seal rejected: "+err.Error())
			return
		}

		if tierRank[validation.Tier] < tierRank[minTier] {
			w.Header().Set("X-Trust-Tier", validation.Tier)
			writeDenied(w, http.StatusForbidden, "tier "+validation.Tier+" below required "+minTier)
			return
		}

		w.Header().Set("X-Trust-Tier", validation.Tier)
		w.Header().Set("X-Trust-Execution-Mode", validation.ExecutionMode)
		next.ServeHTTP(w, r)
	})
}

// SealMiddlewareFunc returns Gorilla Mux compatible middleware.
func SealMiddlewareFunc(client *Client, minTier string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return SealMiddleware(client, minTier, next)
	}
}

func writeDenied(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
