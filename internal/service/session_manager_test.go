package service

import (
	"context"
	"testing"
	"time"

	"ronpa-server/pkg/ai"
	"ronpa-server/shared/database"
	"ronpa-server/shared/interfaces/mocks"
	"ronpa-server/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T, host *mocks.MockNarrationHost) (*SessionManager, *SessionStore) {
	t.Helper()
	ctx := context.Background()
	store := NewSessionStore(database.NewMemoryKVStore(), zap.NewNop())
	archive, err := NewArchive(ctx, store, zap.NewNop())
	require.NoError(t, err)

	deps := GameLoopDeps{
		Host:      host,
		Archive:   archive,
		Scheduler: &fakeScheduler{},
	}
	m := NewSessionManager(ctx, deps, store, newTestSetup(archive), zap.NewNop())
	t.Cleanup(m.CloseAll)
	return m, store
}

func TestSessionManager_CreateRunsOpeningTurn(t *testing.T) {
	host := &mocks.MockNarrationHost{}
	host.On("StreamNarration", mock.Anything, mock.Anything, ai.InitialInput("Night One"), mock.Anything).
		Return("Welcome, students!", nil).Once()
	m, store := newTestManager(t, host)
	ctx := context.Background()

	loop, err := m.Create(ctx, SetupRequest{Title: "Night One", Characters: "Ann: archer"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(loop.State().Messages) == 1 && !loop.Busy()
	}, time.Second, 5*time.Millisecond)

	same, err := m.Get(ctx, loop.ID())
	require.NoError(t, err)
	assert.Same(t, loop, same)

	slot, err := store.LoadSlot(ctx, loop.ID())
	require.NoError(t, err)
	assert.Equal(t, "Night One", slot.Title)
	assert.Len(t, slot.Messages, 1)
}

func TestSessionManager_ResumeFromSlot(t *testing.T) {
	host := &mocks.MockNarrationHost{}
	m, store := newTestManager(t, host)
	ctx := context.Background()
	require.NoError(t, store.Autosave(ctx, testState("game-9", "Saved")))

	loop, err := m.Get(ctx, "game-9")
	require.NoError(t, err)
	assert.Equal(t, "Saved", loop.State().Title)

	resumed, err := m.Resume(ctx)
	require.NoError(t, err)
	assert.Same(t, loop, resumed)
	host.AssertNotCalled(t, "StreamNarration", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSessionManager_CloseAndDelete(t *testing.T) {
	m, store := newTestManager(t, &mocks.MockNarrationHost{})
	ctx := context.Background()
	require.NoError(t, store.Autosave(ctx, testState("game-9", "Saved")))

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrGameNotFound)
	assert.ErrorIs(t, m.CloseSession("missing"), models.ErrGameNotFound)

	loop, err := m.Get(ctx, "game-9")
	require.NoError(t, err)
	require.NoError(t, m.CloseSession("game-9"))
	assert.ErrorIs(t, loop.ContinueAsync(), models.ErrSessionClosed)

	// Слот переживает закрытие и снова открывается.
	reopened, err := m.Get(ctx, "game-9")
	require.NoError(t, err)
	assert.NotSame(t, loop, reopened)

	require.NoError(t, m.DeleteSlot(ctx, "game-9"))
	_, err = m.Get(ctx, "game-9")
	assert.ErrorIs(t, err, models.ErrGameNotFound)
}

func TestSessionManager_GetDoesNotWaitForOpeningTurn(t *testing.T) {
	host := &mocks.MockNarrationHost{}
	m, store := newTestManager(t, host)
	ctx := context.Background()

	fresh := testState("game-7", "Blank Slate")
	fresh.Messages = []models.ChatMessage{}
	require.NoError(t, store.Autosave(ctx, fresh))

	release := make(chan struct{})
	host.On("StreamNarration", mock.Anything, mock.Anything, ai.InitialInput("Blank Slate"), mock.Anything).
		Return(hostFunc(func(context.Context, *models.GameState, string, func(string)) string {
			<-release
			return ""
		}), models.ErrTransportFailure).Once()

	loop, err := m.Get(ctx, "game-7")
	require.NoError(t, err, "resume must not surface the narration result")
	assert.True(t, loop.Busy())

	close(release)
	require.Eventually(t, func() bool { return !loop.Busy() }, time.Second, 5*time.Millisecond)
	assert.Empty(t, loop.State().Messages)

	same, err := m.Get(ctx, "game-7")
	require.NoError(t, err)
	assert.Same(t, loop, same)
	host.AssertExpectations(t)
}
