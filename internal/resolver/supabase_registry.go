package resolver

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	supabase "github.com/supabase-community/supabase-go"

	"github.com/ocx/trustcore/internal/core"
	"github.com/ocx/trustcore/internal/identity"
)

// SupabaseRegistry resolves and publishes identities through a shared
// Supabase (PostgreSQL) registry table. Used when several trustcore
// instances federate through one database rather than peer-to-peer HTTP.
type SupabaseRegistry struct {
	client *supabase.Client
	logger *log.Logger
}

// NewSupabaseRegistry creates a registry client from SUPABASE_URL and
// SUPABASE_SERVICE_KEY.
func NewSupabaseRegistry() (*SupabaseRegistry, error) {
	url := os.Getenv("SUPABASE_URL")
	key := os.Getenv("SUPABASE_SERVICE_KEY")
	if url == "" || key == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set")
	}

	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}
	return &SupabaseRegistry{
		client: client,
		logger: log.New(log.Writer(), "[Registry:Supabase] ", log.LstdFlags),
	}, nil
}

// registryRow is the row shape of the agent_registry table. Keys are
// base64 so the row survives any JSON round-trip byte-for-byte.
type registryRow struct {
	AgentID    string `json:"agent_id"`
	PublicKey  string `json:"public_key"`
	KeyHistory string `json:"key_history"`
	CreatedAt  string `json:"created_at"`
	Status     string `json:"status"`
}

func (r *SupabaseRegistry) Resolve(_ context.Context, id core.AgentID) (*identity.AgentIdentity, error) {
	var rows []registryRow
	_, err := r.client.From("agent_registry").
		Select("*", "", false).
		Eq("agent_id", id.String()).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("registry resolve %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("registry resolve %s: %w", id, core.ErrUnknownAgent)
	}
	return rowToIdentity(rows[0])
}

func (r *SupabaseRegistry) Publish(_ context.Context, agent *identity.AgentIdentity) error {
	history, err := json.Marshal(agent.KeyHistory)
	if err != nil {
		return fmt.Errorf("registry publish %s: %w", agent.ID, err)
	}
	row := registryRow{
		AgentID:    agent.ID.String(),
		PublicKey:  base64.StdEncoding.EncodeToString(agent.PublicKey),
		KeyHistory: string(history),
		CreatedAt:  agent.CreatedAt.UTC().Format(time.RFC3339),
		Status:     string(agent.Status),
	}

	var result []registryRow
	_, err = r.client.From("agent_registry").
		Upsert(row, "agent_id", "", "").
		ExecuteTo(&result)
	if err != nil {
		return fmt.Errorf("registry publish %s: %w", agent.ID, err)
	}
	r.logger.Printf("Published identity %s", agent.ID)
	return nil
}

func rowToIdentity(row registryRow) (*identity.AgentIdentity, error) {
	key, err := base64.StdEncoding.DecodeString(row.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("registry row %s: bad public key: %w", row.AgentID, err)
	}
	createdAt, err := time.Parse(time.RFC3339, row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("registry row %s: bad created_at: %w", row.AgentID, err)
	}

	agent := &identity.AgentIdentity{
		ID:        core.AgentID(row.AgentID),
		PublicKey: ed25519.PublicKey(key),
		CreatedAt: createdAt,
		Status:    identity.AgentStatus(row.Status),
	}
	if row.KeyHistory != "" {
		if err := json.Unmarshal([]byte(row.KeyHistory), &agent.KeyHistory); err != nil {
			return nil, fmt.Errorf("registry row %s: bad key history: %w", row.AgentID, err)
		}
	}
	return agent, nil
}
