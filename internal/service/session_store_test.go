package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"ronpa-server/shared/database"
	"ronpa-server/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testState(id, title string) *models.GameState {
	return &models.GameState{
		ID:       id,
		Title:    title,
		IsLocked: true,
		Phase:    models.PhaseIntroduction,
		Mode:     models.ModeWatch,
		Theme:    DefaultTheme,
		HostName: DefaultHostName,
		Characters: []models.Character{
			{ID: "c1", Name: "Ann", Status: models.StatusAlive, Traits: []string{}},
		},
		Evidence: []models.Evidence{},
		Messages: []models.ChatMessage{{Role: models.RoleModelMessage, Content: "Welcome!"}},
	}
}

func newTestStore(kv *database.MemoryKVStore, now time.Time) *SessionStore {
	s := NewSessionStore(kv, zap.NewNop())
	s.now = func() time.Time { return now }
	return s
}

func TestSessionStore_AutosaveAndLoad(t *testing.T) {
	ctx := context.Background()
	kv := database.NewMemoryKVStore()
	store := newTestStore(kv, time.UnixMilli(1_700_000_000_000))

	_, err := store.LoadCurrent(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)

	state := testState("game-1", "First")
	require.NoError(t, store.Autosave(ctx, state))

	current, err := store.LoadCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, state, current)

	slot, err := store.LoadSlot(ctx, "game-1")
	require.NoError(t, err)
	assert.Equal(t, state, slot)

	slots, err := store.ListSlots(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, int64(1_700_000_000_000), slots[0].LastPlayed)
	assert.Equal(t, "First", slots[0].Title)
}

func TestSessionStore_ListSlotsOrder(t *testing.T) {
	ctx := context.Background()
	kv := database.NewMemoryKVStore()

	require.NoError(t, newTestStore(kv, time.UnixMilli(1000)).Autosave(ctx, testState("old", "Old")))
	require.NoError(t, newTestStore(kv, time.UnixMilli(3000)).Autosave(ctx, testState("new", "New")))
	require.NoError(t, newTestStore(kv, time.UnixMilli(2000)).Autosave(ctx, testState("mid", "Mid")))

	slots, err := NewSessionStore(kv, zap.NewNop()).ListSlots(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(slots))
	for _, s := range slots {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"new", "mid", "old"}, ids)
}

func TestSessionStore_DeleteSlot(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(database.NewMemoryKVStore(), time.Now())
	require.NoError(t, store.Autosave(ctx, testState("game-1", "One")))

	require.NoError(t, store.DeleteSlot(ctx, "game-1"))
	require.NoError(t, store.DeleteSlot(ctx, "game-1"))

	_, err := store.LoadSlot(ctx, "game-1")
	assert.ErrorIs(t, err, models.ErrGameNotFound)
}

func TestSessionStore_CorruptionDegrades(t *testing.T) {
	ctx := context.Background()

	t.Run("slots not an object", func(t *testing.T) {
		kv := database.NewMemoryKVStore()
		require.NoError(t, kv.Set(ctx, KeySaveSlots, []byte(`"nope"`)))
		store := NewSessionStore(kv, zap.NewNop())

		slots, err := store.ListSlots(ctx)
		assert.ErrorIs(t, err, models.ErrCorruptState)
		assert.Empty(t, slots)

		// Autosave перезаписывает битую карту.
		require.NoError(t, store.Autosave(ctx, testState("game-1", "One")))
		slots, err = store.ListSlots(ctx)
		require.NoError(t, err)
		assert.Len(t, slots, 1)
	})

	t.Run("one bad slot dropped", func(t *testing.T) {
		kv := database.NewMemoryKVStore()
		good, err := json.Marshal(models.SaveSlot{ID: "ok", Title: "Ok", LastPlayed: 1, State: testState("ok", "Ok")})
		require.NoError(t, err)
		blob := `{"ok":` + string(good) + `,"bad":{"id":"bad","title":"Bad","lastPlayed":2,"state":{"id":"bad","phase":"LUNCH"}}}`
		require.NoError(t, kv.Set(ctx, KeySaveSlots, []byte(blob)))
		store := NewSessionStore(kv, zap.NewNop())

		slots, err := store.ListSlots(ctx)
		assert.ErrorIs(t, err, models.ErrCorruptState)
		require.Len(t, slots, 1)
		assert.Equal(t, "ok", slots[0].ID)

		state, err := store.LoadSlot(ctx, "ok")
		require.NoError(t, err)
		assert.Equal(t, "Ok", state.Title)
	})

	t.Run("current session invalid", func(t *testing.T) {
		kv := database.NewMemoryKVStore()
		require.NoError(t, kv.Set(ctx, KeyCurrentSession, []byte(`{"id":"x"}`)))
		_, err := NewSessionStore(kv, zap.NewNop()).LoadCurrent(ctx)
		assert.ErrorIs(t, err, models.ErrCorruptState)

		var corrupt *models.CorruptStateError
		require.ErrorAs(t, err, &corrupt)
		assert.Equal(t, KeyCurrentSession, corrupt.Key)
	})

	t.Run("archive not an array", func(t *testing.T) {
		kv := database.NewMemoryKVStore()
		require.NoError(t, kv.Set(ctx, KeyArchive, []byte(`{}`)))
		entries, err := NewSessionStore(kv, zap.NewNop()).LoadArchive(ctx)
		assert.ErrorIs(t, err, models.ErrCorruptState)
		assert.Empty(t, entries)
	})
}

func TestSessionStore_AutosaveNil(t *testing.T) {
	err := NewSessionStore(database.NewMemoryKVStore(), zap.NewNop()).Autosave(context.Background(), nil)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
