package score

import (
	"context"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"

	"github.com/ocx/trustcore/internal/core"
)

// SpannerStore implements Store on Cloud Spanner, for deployments where the
// score table outlives any single engine instance. Row shape:
//
//	AgentScores(AgentID, Overall, Behavioral, Social, Cryptographic,
//	            LastComputedAt, UpdatedAt)
type SpannerStore struct {
	client *spanner.Client
	logger *log.Logger
}

// NewSpannerStore creates a score store backed by Spanner.
func NewSpannerStore(project, instance, dbName string) (*SpannerStore, error) {
	ctx := context.Background()
	dbPath := fmt.Sprintf("projects/%s/instances/%s/databases/%s", project, instance, dbName)

	client, err := spanner.NewClient(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create Spanner client: %w", err)
	}

	return &SpannerStore{
		client: client,
		logger: log.New(log.Writer(), "[ScoreStore:Spanner] ", log.LstdFlags),
	}, nil
}

var scoreColumns = []string{"Overall", "Behavioral", "Social", "Cryptographic", "LastComputedAt"}

func (ss *SpannerStore) Get(ctx context.Context, id core.AgentID) (*TrustScore, error) {
	row, err := ss.client.Single().ReadRow(ctx, "AgentScores", spanner.Key{id.String()}, scoreColumns)
	if err != nil {
		if spanner.ErrCode(err) == codes.NotFound {
			return nil, fmt.Errorf("score for %s: %w", id, core.ErrUnknownAgent)
		}
		return nil, fmt.Errorf("spanner read %s: %w", id, err)
	}

	var (
		overall, behavioral, social, cryptographic float64
		lastComputedAt                             time.Time
	)
	if err := row.Columns(&overall, &behavioral, &social, &cryptographic, &lastComputedAt); err != nil {
		return nil, err
	}

	return &TrustScore{
		Overall: overall,
		Components: map[Component]float64{
			ComponentBehavioral:    behavioral,
			ComponentSocial:        social,
			ComponentCryptographic: cryptographic,
		},
		LastComputedAt: lastComputedAt,
	}, nil
}

func (ss *SpannerStore) Put(ctx context.Context, id core.AgentID, s *TrustScore) error {
	_, err := ss.client.Apply(ctx, []*spanner.Mutation{
		spanner.InsertOrUpdate("AgentScores",
			[]string{"AgentID", "Overall", "Behavioral", "Social", "Cryptographic", "LastComputedAt", "UpdatedAt"},
			[]interface{}{
				id.String(),
				s.Overall,
				s.Components[ComponentBehavioral],
				s.Components[ComponentSocial],
				s.Components[ComponentCryptographic],
				s.LastComputedAt,
				spanner.CommitTimestamp,
			},
		),
	})
	if err != nil {
		return fmt.Errorf("spanner put %s: %w", id, err)
	}
	return nil
}

func (ss *SpannerStore) List(ctx context.Context) ([]core.AgentID, error) {
	stmt := spanner.Statement{SQL: `SELECT AgentID FROM AgentScores`}
	iter := ss.client.Single().Query(ctx, stmt)
	defer iter.Stop()

	var ids []core.AgentID
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		var id string
		if err := row.Columns(&id); err != nil {
			return nil, err
		}
		ids = append(ids, core.AgentID(id))
	}
	return ids, nil
}

func (ss *SpannerStore) Close() error {
	ss.client.Close()
	return nil
}
