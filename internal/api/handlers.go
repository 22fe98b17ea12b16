package api

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ocx/trustcore/internal/core"
	"github.com/ocx/trustcore/internal/graph"
	"github.com/ocx/trustcore/internal/identity"
	"github.com/ocx/trustcore/internal/revocation"
	"github.com/ocx/trustcore/internal/score"
	"github.com/ocx/trustcore/internal/seal"
	"github.com/ocx/trustcore/internal/webhooks"
)

// --- Identity ---

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID   string `json:"agent_id"`
		PublicKey string `json:"public_key"` // base64 raw Ed25519
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	id, err := core.ParseAgentID(req.AgentID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	key, err := base64.StdEncoding.DecodeString(req.PublicKey)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "public_key must be base64"})
		return
	}

	agent, err := s.engine.RegisterAgent(r.Context(), id, ed25519.PublicKey(key))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agentResponse(agent))
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathAgentID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	agent, err := s.engine.GetAgent(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agentResponse(agent))
}

func (s *Server) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	id, err := pathAgentID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var req struct {
		PublicKey string `json:"public_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	key, err := base64.StdEncoding.DecodeString(req.PublicKey)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "public_key must be base64"})
		return
	}

	if err := s.engine.RotateKey(r.Context(), id, ed25519.PublicKey(key)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rotated"})
}

func (s *Server) handleVerifySignature(w http.ResponseWriter, r *http.Request) {
	id, err := pathAgentID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var req struct {
		Message   string `json:"message"`   // base64
		Signature string `json:"signature"` // base64
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	msg, err := base64.StdEncoding.DecodeString(req.Message)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message must be base64"})
		return
	}
	sig, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "signature must be base64"})
		return
	}

	valid, err := s.engine.VerifySignature(r.Context(), id, msg, sig)
	if err != nil && !errors.Is(err, core.ErrInvalidSignature) {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agent_id": string(id), "valid": valid})
}

func (s *Server) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	id, err := pathAgentID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var req struct {
		Proof        string `json:"proof"`         // base64
		PublicInputs string `json:"public_inputs"` // base64
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	proof, err := base64.StdEncoding.DecodeString(req.Proof)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "proof must be base64"})
		return
	}
	inputs, err := base64.StdEncoding.DecodeString(req.PublicInputs)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "public_inputs must be base64"})
		return
	}

	valid, err := s.engine.SubmitProof(r.Context(), id, proof, inputs)
	if err != nil && !errors.Is(err, core.ErrInvalidSignature) {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agent_id": string(id), "valid": valid})
}

// --- Scores ---

func (s *Server) handleGetScore(w http.ResponseWriter, r *http.Request) {
	id, err := pathAgentID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	current, err := s.engine.CurrentScore(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse(id, current))
}

func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathAgentID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var req struct {
		Kind     string  `json:"kind"`
		Success  *bool   `json:"success,omitempty"`
		Rating   int     `json:"rating,omitempty"`
		Strength float64 `json:"strength,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ev, err := eventFromRequest(req.Kind, req.Success, req.Rating, req.Strength)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := s.engine.RecordEvent(r.Context(), id, ev); err != nil {
		writeError(w, err)
		return
	}
	current, err := s.engine.CurrentScore(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse(id, current))
}

func eventFromRequest(kind string, success *bool, rating int, strength float64) (score.Event, error) {
	switch kind {
	case "task_completion":
		if success == nil {
			return nil, fmt.Errorf("task_completion requires success")
		}
		return score.TaskCompletion{Success: *success}, nil
	case "user_feedback":
		if rating < 1 || rating > 5 {
			return nil, fmt.Errorf("user_feedback rating must be in [1, 5]")
		}
		return score.UserFeedback{Rating: rating}, nil
	case "peer_endorsement":
		return score.PeerEndorsement{Strength: strength}, nil
	case "crypto_verification":
		if success == nil {
			return nil, fmt.Errorf("crypto_verification requires success")
		}
		return score.CryptoVerification{Success: *success}, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
}

// --- Lifecycle ---

func (s *Server) handleQuarantine(w http.ResponseWriter, r *http.Request) {
	id, err := pathAgentID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var req struct {
		Reason   string `json:"reason"`
		Severity string `json:"severity"`
		Actor    string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Actor == "" {
		req.Actor = "api"
	}

	err = s.engine.Quarantine(r.Context(), id, revocation.Reason(req.Reason), revocation.Severity(req.Severity), req.Actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "quarantined"})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id, err := pathAgentID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var req struct {
		Reason   string `json:"reason"`
		IssuedBy string `json:"issued_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.IssuedBy == "" {
		req.IssuedBy = "api"
	}

	if err := s.engine.Revoke(r.Context(), id, revocation.Reason(req.Reason), req.IssuedBy); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	id, err := pathAgentID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var req struct {
		Steps map[string]string `json:"steps"` // step name -> attestation ref
		Actor string            `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Actor == "" {
		req.Actor = "api"
	}

	plan := revocation.RecoveryPlan{Steps: make(map[revocation.RecoveryStep]string, len(req.Steps))}
	for step, ref := range req.Steps {
		plan.Steps[revocation.RecoveryStep(step)] = ref
	}

	priv, err := s.engine.InitiateRecovery(r.Context(), id, plan, req.Actor)
	if err != nil {
		writeError(w, err)
		return
	}
	// The private key is returned exactly once for re-provisioning.
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "recovered",
		"private_key": base64.StdEncoding.EncodeToString(priv),
	})
}

func (s *Server) handleRevocationHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathAgentID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id": string(id),
		"active":   s.engine.RevocationRecord(id),
		"history":  s.engine.RevocationHistory(id),
	})
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	id, err := pathAgentID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id": string(id),
		"events":   s.engine.AuditTrail(id),
	})
}

func (s *Server) handleAuditRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"root": s.engine.AuditRoot()})
}

// --- Graph ---

func (s *Server) handleAddEndorsement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From         string   `json:"from"`
		To           string   `json:"to"`
		Type         string   `json:"type"`
		EvidenceRefs []string `json:"evidence_refs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	from, err := core.ParseAgentID(req.From)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	to, err := core.ParseAgentID(req.To)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	relType, err := graph.ParseRelationshipType(req.Type)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	edge, err := s.engine.AddEndorsement(r.Context(), from, to, relType, req.EvidenceRefs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"from":           string(edge.From),
		"to":             string(edge.To),
		"type":           string(edge.Type),
		"strength":       edge.Strength,
		"established_at": edge.EstablishedAt.Format(time.RFC3339),
	})
}

func (s *Server) handleTrustPath(w http.ResponseWriter, r *http.Request) {
	from, err := core.ParseAgentID(r.URL.Query().Get("from"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	to, err := core.ParseAgentID(r.URL.Query().Get("to"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	path, err := s.engine.FindTrustPath(r.Context(), from, to)
	if err != nil {
		writeError(w, err)
		return
	}

	ids := make([]string, 0, len(path))
	for _, id := range path {
		ids = append(ids, string(id))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"found": path != nil,
		"path":  ids,
	})
}

func (s *Server) handleTrustWeight(w http.ResponseWriter, r *http.Request) {
	from, err := core.ParseAgentID(r.URL.Query().Get("from"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	to, err := core.ParseAgentID(r.URL.Query().Get("to"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"from":   string(from),
		"to":     string(to),
		"weight": s.engine.TrustWeight(from, to),
	})
}

// --- Seals ---

func (s *Server) handleIssueSeal(w http.ResponseWriter, r *http.Request) {
	id, err := pathAgentID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	sealed, err := s.engine.IssueSeal(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sealResponse(sealed))
}

func (s *Server) handleValidateSeal(w http.ResponseWriter, r *http.Request) {
	var req seal.TrustSeal
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	tier, err := s.engine.ValidateSeal(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":          true,
		"tier":           tier.String(),
		"execution_mode": string(tier.ExecutionMode()),
	})
}

// --- Webhooks ---

func (s *Server) handleRegisterWebhook(w http.ResponseWriter, r *http.Request) {
	var sub webhooks.Subscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.hooks.Register(&sub); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hooks.ListAll())
}

func (s *Server) handleUnregisterWebhook(w http.ResponseWriter, r *http.Request) {
	if err := s.hooks.Unregister(mux.Vars(r)["id"]); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- response shaping ---

func agentResponse(a *identity.AgentIdentity) map[string]interface{} {
	return map[string]interface{}{
		"agent_id":   string(a.ID),
		"status":     string(a.Status),
		"public_key": base64.StdEncoding.EncodeToString(a.PublicKey),
		"key_epochs": len(a.KeyHistory) + 1, // retired epochs + current key
		"created_at": a.CreatedAt.Format(time.RFC3339),
	}
}

func scoreResponse(id core.AgentID, s *score.TrustScore) map[string]interface{} {
	components := make(map[string]float64, len(s.Components))
	for c, v := range s.Components {
		components[string(c)] = v
	}
	return map[string]interface{}{
		"agent_id":         string(id),
		"overall":          s.Overall,
		"components":       components,
		"tier":             seal.TierForScore(s.Overall).String(),
		"last_computed_at": s.LastComputedAt.Format(time.RFC3339),
	}
}

func sealResponse(s *seal.TrustSeal) map[string]interface{} {
	return map[string]interface{}{
		"seal_id":          s.SealID,
		"agent_id":         string(s.AgentID),
		"tier":             s.Tier.String(),
		"execution_mode":   string(s.Tier.ExecutionMode()),
		"score_snapshot":   s.ScoreSnapshot,
		"issued_at":        s.IssuedAt.Format(time.RFC3339),
		"expires_at":       s.ExpiresAt.Format(time.RFC3339),
		"issuer_signature": base64.StdEncoding.EncodeToString(s.IssuerSignature),
	}
}
