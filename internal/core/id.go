package core

import (
	"fmt"
	"strings"

	"github.com/spiffe/go-spiffe/v2/spiffeid"
)

// AgentID is the stable opaque identifier for a principal, in the form
// <namespace>:<cluster>:<entity>. Globally unique, immutable after creation.
type AgentID string

// ParseAgentID validates the three-part identifier format.
func ParseAgentID(s string) (AgentID, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("agent id %q: want <namespace>:<cluster>:<entity>", s)
	}
	for i, p := range parts {
		if p == "" {
			return "", fmt.Errorf("agent id %q: component %d is empty", s, i)
		}
	}
	return AgentID(s), nil
}

func (id AgentID) String() string { return string(id) }

// Namespace returns the first component of the identifier.
func (id AgentID) Namespace() string { return id.part(0) }

// Cluster returns the second component of the identifier.
func (id AgentID) Cluster() string { return id.part(1) }

// Entity returns the third component of the identifier.
func (id AgentID) Entity() string { return id.part(2) }

func (id AgentID) part(i int) string {
	parts := strings.Split(string(id), ":")
	if i >= len(parts) {
		return ""
	}
	return parts[i]
}

// SPIFFEID maps the agent identifier into the namespace's SPIFFE trust
// domain: spiffe://<namespace>/<cluster>/<entity>. Used when the identity is
// published to a federated registry or attested over mTLS.
func (id AgentID) SPIFFEID() (spiffeid.ID, error) {
	td, err := spiffeid.TrustDomainFromString(id.Namespace())
	if err != nil {
		return spiffeid.ID{}, fmt.Errorf("agent namespace is not a valid trust domain: %w", err)
	}
	return spiffeid.FromSegments(td, id.Cluster(), id.Entity())
}

// AgentIDFromSPIFFE converts a SPIFFE ID of the form
// spiffe://<namespace>/<cluster>/<entity> back into an AgentID.
func AgentIDFromSPIFFE(id spiffeid.ID) (AgentID, error) {
	segments := strings.Split(strings.TrimPrefix(id.Path(), "/"), "/")
	if len(segments) != 2 {
		return "", fmt.Errorf("spiffe id %s: want 2 path segments, got %d", id, len(segments))
	}
	return ParseAgentID(fmt.Sprintf("%s:%s:%s", id.TrustDomain().Name(), segments[0], segments[1]))
}
