package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ronpa-server/shared/interfaces"
	"ronpa-server/shared/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	pgxV5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var _ interfaces.KVStore = (*PgKVStore)(nil)

const (
	getKVEntryQuery    = `SELECT key, value, updated_at FROM kv_entries WHERE key = $1`
	upsertKVEntryQuery = `
		INSERT INTO kv_entries (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
)

// kvEntry - строка таблицы kv_entries.
type kvEntry struct {
	Key       string    `db:"key"`
	Value     []byte    `db:"value"`
	UpdatedAt time.Time `db:"updated_at"`
}

type PgKVStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPgKVStore creates a Postgres-backed KVStore. The kv_entries table is
// created by the embedded migrations (see RunMigrations).
func NewPgKVStore(pool *pgxpool.Pool, logger *zap.Logger) *PgKVStore {
	return &PgKVStore{
		pool:   pool,
		logger: logger.Named("PgKVStore"),
	}
}

func (r *PgKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	log := r.logger.With(zap.String("key", key))

	var entry kvEntry
	if err := pgxscan.Get(ctx, r.pool, &entry, getKVEntryQuery, key); err != nil {
		if errors.Is(err, pgxV5.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		log.Error("Error getting kv entry", zap.Error(err))
		return nil, fmt.Errorf("postgres get %s: %w", key, err)
	}
	return entry.Value, nil
}

func (r *PgKVStore) Set(ctx context.Context, key string, value []byte) error {
	if _, err := r.pool.Exec(ctx, upsertKVEntryQuery, key, value, time.Now().UTC()); err != nil {
		r.logger.Error("Error upserting kv entry", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("postgres set %s: %w", key, err)
	}
	return nil
}

func (r *PgKVStore) Close() error {
	r.pool.Close()
	return nil
}
