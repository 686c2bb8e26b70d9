package service

import (
	"context"
	"errors"
	"testing"

	"ronpa-server/shared/database"
	"ronpa-server/shared/interfaces/mocks"
	"ronpa-server/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestArchive(t *testing.T, seed ...models.Character) (*Archive, *SessionStore) {
	t.Helper()
	ctx := context.Background()
	store := NewSessionStore(database.NewMemoryKVStore(), zap.NewNop())
	if len(seed) > 0 {
		require.NoError(t, store.WriteArchive(ctx, seed))
	}
	archive, err := NewArchive(ctx, store, zap.NewNop())
	require.NoError(t, err)
	return archive, store
}

func TestArchive_FullUpsertKeepsHistory(t *testing.T) {
	history := []models.MatchHistory{{GameTitle: "Killing Game #1234", Outcome: models.OutcomeSurvivor, Details: "Survived"}}
	archive, store := newTestArchive(t, models.Character{ID: "c1", Name: "Ann", Status: models.StatusAlive, History: history})

	written, err := archive.Upsert(context.Background(), models.Character{ID: "c1", Name: "Ann", UltimateTitle: "Ultimate Archer", Status: models.StatusDead}, UpsertFull)
	require.NoError(t, err)
	assert.True(t, written)

	got, ok := archive.Get("c1")
	require.True(t, ok)
	assert.Equal(t, history, got.History)
	assert.Equal(t, "Ultimate Archer", got.UltimateTitle)
	assert.Equal(t, models.StatusDead, got.Status)

	// Persisted copy carries the same history.
	persisted, err := store.LoadArchive(context.Background())
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, history, persisted[0].History)
}

func TestArchive_UpdateOnlyMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	kv := mocks.NewMockKVStore(t)
	kv.On("Get", mock.Anything, KeyArchive).Return(nil, models.ErrNotFound).Once()
	store := NewSessionStore(kv, zap.NewNop())
	archive, err := NewArchive(ctx, store, zap.NewNop())
	require.NoError(t, err)

	written, err := archive.Upsert(ctx, models.Character{ID: "ghost", Name: "Ghost"}, UpsertUpdateOnly)
	require.NoError(t, err)
	assert.False(t, written)
	assert.Equal(t, 0, archive.Len())
	assert.False(t, archive.IsSaved("ghost"))
	// Set не вызывался: мок упадет на неожиданном вызове.
}

func TestArchive_UpdateOnlyExisting(t *testing.T) {
	archive, _ := newTestArchive(t, models.Character{ID: "c1", Name: "Ann", Status: models.StatusAlive})

	written, err := archive.Upsert(context.Background(), models.Character{ID: "c1", Name: "Ann", AvatarURL: "a.png", Status: models.StatusAlive}, UpsertUpdateOnly)
	require.NoError(t, err)
	assert.True(t, written)

	got, _ := archive.Get("c1")
	assert.Equal(t, "a.png", got.AvatarURL)
	assert.Equal(t, 1, archive.Len())
}

func TestArchive_UpsertAll(t *testing.T) {
	archive, _ := newTestArchive(t, models.Character{ID: "c1", Name: "Ann", Status: models.StatusAlive})
	cast := []models.Character{
		{ID: "c1", Name: "Ann", Status: models.StatusAlive},
		{ID: "c2", Name: "Bob", Status: models.StatusAlive},
		{Name: "No ID"},
	}

	ids, err := archive.UpsertAll(context.Background(), cast, UpsertUpdateOnly)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids)
	assert.Equal(t, 1, archive.Len())

	ids, err = archive.UpsertAll(context.Background(), cast, UpsertFull)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, ids)
	assert.Equal(t, 2, archive.Len())
	assert.True(t, archive.IsSaved("c2"))
}

func TestArchive_RecordOutcomes(t *testing.T) {
	archive, _ := newTestArchive(t,
		models.Character{ID: "c1", Name: "Ann", Status: models.StatusAlive},
		models.Character{ID: "c2", Name: "Bob", Status: models.StatusAlive},
	)
	cast := []models.Character{
		{ID: "c1", Name: "Ann", Status: models.StatusAlive},
		{ID: "c2", Name: "Bob", Status: models.StatusExecuted},
		{ID: "c3", Name: "Cid", Status: models.StatusDead},
	}

	n, err := archive.RecordOutcomes(context.Background(), "Killing Game #4242", cast)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ann, _ := archive.Get("c1")
	require.Len(t, ann.History, 1)
	assert.Equal(t, models.OutcomeSurvivor, ann.History[0].Outcome)
	assert.Equal(t, "Killing Game #4242", ann.History[0].GameTitle)

	bob, _ := archive.Get("c2")
	require.Len(t, bob.History, 1)
	assert.Equal(t, models.OutcomeCulprit, bob.History[0].Outcome)
	assert.False(t, archive.IsSaved("c3"))
}

func TestArchive_PersistFailure(t *testing.T) {
	ctx := context.Background()
	kv := mocks.NewMockKVStore(t)
	kv.On("Get", mock.Anything, KeyArchive).Return(nil, models.ErrNotFound).Once()
	kv.On("Set", mock.Anything, KeyArchive, mock.Anything).Return(errors.New("disk full")).Once()
	archive, err := NewArchive(ctx, NewSessionStore(kv, zap.NewNop()), zap.NewNop())
	require.NoError(t, err)

	_, err = archive.Upsert(ctx, models.Character{ID: "c1", Name: "Ann", Status: models.StatusAlive}, UpsertFull)
	assert.Error(t, err)
	// In-memory view still has the entry; the next write retries the whole archive.
	assert.True(t, archive.IsSaved("c1"))
}

func TestArchive_LoadDegradesOnCorruption(t *testing.T) {
	ctx := context.Background()
	kv := database.NewMemoryKVStore()
	require.NoError(t, kv.Set(ctx, KeyArchive, []byte(`[{"id":"c1","name":"Ann","status":"ALIVE"},{"id":"c2","status":"ZOMBIE"}]`)))

	archive, err := NewArchive(ctx, NewSessionStore(kv, zap.NewNop()), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, archive.Len())
	assert.True(t, archive.IsSaved("c1"))
}

func TestOutcomeForStatus(t *testing.T) {
	tests := map[models.CharacterStatus]models.MatchOutcome{
		models.StatusAlive:    models.OutcomeSurvivor,
		models.StatusDead:     models.OutcomeVictim,
		models.StatusExecuted: models.OutcomeCulprit,
		"":                    models.OutcomeUnknown,
	}
	for status, want := range tests {
		assert.Equal(t, want, OutcomeForStatus(status), string(status))
	}
}

func TestArchive_IncomingHistoryNeverReplacesArchived(t *testing.T) {
	archive, _ := newTestArchive(t, models.Character{ID: "c1", Name: "Ann", Status: models.StatusAlive})
	forged := []models.MatchHistory{{GameTitle: "Forged", Outcome: models.OutcomeMastermind}}

	for _, mode := range []UpsertMode{UpsertFull, UpsertUpdateOnly} {
		written, err := archive.Upsert(context.Background(), models.Character{ID: "c1", Name: "Ann", Status: models.StatusAlive, History: forged}, mode)
		require.NoError(t, err)
		assert.True(t, written)

		got, _ := archive.Get("c1")
		assert.Empty(t, got.History)
	}
}
