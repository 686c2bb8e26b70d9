package database

import (
	"context"
	"fmt"

	"ronpa-server/shared/interfaces"
	"ronpa-server/shared/models"

	supa "github.com/supabase-community/supabase-go"
	"go.uber.org/zap"
)

var _ interfaces.KVStore = (*SupabaseKVStore)(nil)

// supabaseRow matches the kv_entries table exposed through PostgREST.
type supabaseRow struct {
	Key   string `json:"key"`
	Value string `json:"value"` // JSON-документ хранится как text
}

type SupabaseKVStore struct {
	client *supa.Client
	table  string
	logger *zap.Logger
}

// NewSupabaseKVStore connects to a Supabase project and stores values in table.
func NewSupabaseKVStore(url, key, table string, logger *zap.Logger) (*SupabaseKVStore, error) {
	client, err := supa.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to supabase: %w", err)
	}
	return &SupabaseKVStore{client: client, table: table, logger: logger.Named("SupabaseKVStore")}, nil
}

// Get ignores ctx: the PostgREST client has no context support.
func (s *SupabaseKVStore) Get(_ context.Context, key string) ([]byte, error) {
	var rows []supabaseRow
	_, err := s.client.From(s.table).Select("key,value", "exact", false).Eq("key", key).Limit(1, "").ExecuteTo(&rows)
	if err != nil {
		s.logger.Error("Error reading row from Supabase", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("supabase get %s: %w", key, err)
	}
	if len(rows) == 0 {
		return nil, models.ErrNotFound
	}
	return []byte(rows[0].Value), nil
}

func (s *SupabaseKVStore) Set(_ context.Context, key string, value []byte) error {
	row := supabaseRow{Key: key, Value: string(value)}
	var written []supabaseRow
	_, err := s.client.From(s.table).Insert(row, true, "key", "", "").ExecuteTo(&written)
	if err != nil {
		s.logger.Error("Error upserting row in Supabase", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("supabase set %s: %w", key, err)
	}
	return nil
}
