package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ocx/trustcore/internal/core"
)

const (
	redisIdentityPrefix = "trustcore:identity:"
	redisIdentityIndex  = "trustcore:identity:index"
)

// RedisStore persists identities in Redis. Suitable for multi-instance
// deployments where seal issuers share one identity population.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis and verifies connectivity. Returns the
// store and any connection error (caller decides whether to fall back to
// the in-memory store).
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}

	slog.Info("Identity store connected to Redis", "addr", addr, "db", db)
	return &RedisStore{rdb: rdb}, nil
}

type redisIdentityRow struct {
	ID         string      `json:"id"`
	PublicKey  []byte      `json:"public_key"`
	KeyHistory []KeyEpoch  `json:"key_history"`
	CreatedAt  time.Time   `json:"created_at"`
	Status     AgentStatus `json:"status"`
}

func (s *RedisStore) Put(ctx context.Context, agent *AgentIdentity) error {
	row := redisIdentityRow{
		ID:         agent.ID.String(),
		PublicKey:  agent.PublicKey,
		KeyHistory: agent.KeyHistory,
		CreatedAt:  agent.CreatedAt,
		Status:     agent.Status,
	}
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal identity %s: %w", agent.ID, err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, redisIdentityPrefix+agent.ID.String(), data, 0)
	pipe.SAdd(ctx, redisIdentityIndex, agent.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put %s: %w", agent.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id core.AgentID) (*AgentIdentity, error) {
	data, err := s.rdb.Get(ctx, redisIdentityPrefix+id.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("identity %s: %w", id, core.ErrUnknownAgent)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", id, err)
	}

	var row redisIdentityRow
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("unmarshal identity %s: %w", id, err)
	}
	return &AgentIdentity{
		ID:         core.AgentID(row.ID),
		PublicKey:  row.PublicKey,
		KeyHistory: row.KeyHistory,
		CreatedAt:  row.CreatedAt,
		Status:     row.Status,
	}, nil
}

func (s *RedisStore) SetStatus(ctx context.Context, id core.AgentID, status AgentStatus) error {
	agent, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	agent.Status = status
	return s.Put(ctx, agent)
}

func (s *RedisStore) List(ctx context.Context) ([]core.AgentID, error) {
	members, err := s.rdb.SMembers(ctx, redisIdentityIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list identities: %w", err)
	}
	ids := make([]core.AgentID, 0, len(members))
	for _, m := range members {
		ids = append(ids, core.AgentID(m))
	}
	return ids, nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }
