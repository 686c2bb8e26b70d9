package database

import (
	"context"
	"path/filepath"
	"testing"

	"ronpa-server/shared/interfaces"
	"ronpa-server/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// assertKVStoreContract проверяет поведение, общее для всех бэкендов.
func assertKVStoreContract(t *testing.T, store interfaces.KVStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, store.Set(ctx, "ronpa:slots", []byte(`{"a":1}`)))
	got, err := store.Get(ctx, "ronpa:slots")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))

	// перезапись
	require.NoError(t, store.Set(ctx, "ronpa:slots", []byte(`{"b":2}`)))
	got, err = store.Get(ctx, "ronpa:slots")
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":2}`, string(got))

	require.NoError(t, store.Set(ctx, "ronpa:archive", []byte(`[]`)))
	got, err = store.Get(ctx, "ronpa:slots")
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":2}`, string(got), "keys must not overlap")
}

func TestMemoryKVStore(t *testing.T) {
	assertKVStoreContract(t, NewMemoryKVStore())
}

func TestMemoryKVStore_CopiesValues(t *testing.T) {
	store := NewMemoryKVStore()
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", value))
	value[0] = 'x'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got[1] = 'y'
	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestSqliteKVStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ronpa.db")
	store, err := NewSqliteKVStore(path, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	assertKVStoreContract(t, store)
}

func TestSqliteKVStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ronpa.db")
	ctx := context.Background()

	store, err := NewSqliteKVStore(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "ronpa:current", []byte(`{"id":"g1"}`)))
	require.NoError(t, store.Close())

	reopened, err := NewSqliteKVStore(path, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "ronpa:current")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"g1"}`, string(got))
}
