package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ocx/trustcore/internal/core"
)

// PostgresStore persists identities in Postgres. The caller owns the driver
// registration (blank-import github.com/lib/pq in the binary).
type PostgresStore struct {
	db     *sql.DB
	logger *log.Logger
}

// NewPostgresStore opens a Postgres-backed identity store and ensures the
// schema exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	s := &PostgresStore{
		db:     db,
		logger: log.New(log.Writer(), "[IdentityStore:Postgres] ", log.LstdFlags),
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS agent_identities (
			agent_id    TEXT PRIMARY KEY,
			public_key  BYTEA NOT NULL,
			key_history JSONB NOT NULL DEFAULT '[]',
			created_at  TIMESTAMPTZ NOT NULL,
			status      TEXT NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create agent_identities table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, agent *AgentIdentity) error {
	history, err := json.Marshal(agent.KeyHistory)
	if err != nil {
		return fmt.Errorf("marshal key history for %s: %w", agent.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_identities (agent_id, public_key, key_history, created_at, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (agent_id) DO UPDATE SET
			public_key  = EXCLUDED.public_key,
			key_history = EXCLUDED.key_history,
			status      = EXCLUDED.status,
			updated_at  = now()`,
		agent.ID.String(), []byte(agent.PublicKey), history, agent.CreatedAt, string(agent.Status))
	if err != nil {
		return fmt.Errorf("postgres put %s: %w", agent.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id core.AgentID) (*AgentIdentity, error) {
	var (
		publicKey []byte
		history   []byte
		createdAt time.Time
		status    string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT public_key, key_history, created_at, status
		FROM agent_identities WHERE agent_id = $1`, id.String()).
		Scan(&publicKey, &history, &createdAt, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("identity %s: %w", id, core.ErrUnknownAgent)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get %s: %w", id, err)
	}

	agent := &AgentIdentity{
		ID:        id,
		PublicKey: publicKey,
		CreatedAt: createdAt,
		Status:    AgentStatus(status),
	}
	if err := json.Unmarshal(history, &agent.KeyHistory); err != nil {
		return nil, fmt.Errorf("unmarshal key history for %s: %w", id, err)
	}
	return agent, nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, id core.AgentID, status AgentStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE agent_identities SET status = $2, updated_at = now()
		WHERE agent_id = $1`, id.String(), string(status))
	if err != nil {
		return fmt.Errorf("postgres set status %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("identity %s: %w", id, core.ErrUnknownAgent)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]core.AgentID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT agent_id FROM agent_identities`)
	if err != nil {
		return nil, fmt.Errorf("postgres list identities: %w", err)
	}
	defer rows.Close()

	var ids []core.AgentID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, core.AgentID(id))
	}
	return ids, rows.Err()
}

func (s *PostgresStore) Close() error { return s.db.Close() }
