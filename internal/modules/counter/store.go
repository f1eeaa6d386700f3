// README: Counter store backed by PostgreSQL; one upsert per increment keeps values gap-free.
package counter

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Increment(ctx context.Context, namespace string) (int64, error) {
	var value int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO counters (namespace, value, updated_at)
		VALUES ($1, 1, NOW())
		ON CONFLICT (namespace)
		DO UPDATE SET value = counters.value + 1, updated_at = NOW()
		RETURNING value`, namespace,
	).Scan(&value)
	return value, err
}
