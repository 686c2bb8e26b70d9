package service

import (
	"context"
	"fmt"
	"sync"

	"ronpa-server/shared/models"

	"go.uber.org/zap"
)

// SessionManager держит открытые игровые циклы по id игры. Игра, которой
// нет в памяти, поднимается из слота сохранения при первом обращении.
type SessionManager struct {
	mu    sync.Mutex
	loops map[string]*GameLoop

	baseCtx context.Context
	deps    GameLoopDeps
	store   *SessionStore
	setup   *SetupService
	logger  *zap.Logger
}

// NewSessionManager creates the registry. deps.Store is overridden with store.
func NewSessionManager(ctx context.Context, deps GameLoopDeps, store *SessionStore, setup *SetupService, logger *zap.Logger) *SessionManager {
	deps.Store = store
	return &SessionManager{
		loops:   make(map[string]*GameLoop),
		baseCtx: ctx,
		deps:    deps,
		store:   store,
		setup:   setup,
		logger:  logger.Named("SessionManager"),
	}
}

// Create prepares a new game, saves it and starts the opening narration in
// the background.
func (m *SessionManager) Create(ctx context.Context, req SetupRequest) (*GameLoop, error) {
	state, err := m.setup.NewGame(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := m.store.Autosave(ctx, state); err != nil {
		return nil, fmt.Errorf("save new game: %w", err)
	}

	loop := m.register(state)
	if err := loop.StartAsync(); err != nil {
		m.logger.Warn("Opening turn not started", zap.String("gameID", state.ID), zap.Error(err))
	}
	return loop, nil
}

// Get returns the open loop for gameID, resuming it from its save slot if
// needed. Never waits for narration. Returns models.ErrGameNotFound for
// unknown ids.
func (m *SessionManager) Get(ctx context.Context, gameID string) (*GameLoop, error) {
	m.mu.Lock()
	loop, ok := m.loops[gameID]
	m.mu.Unlock()
	if ok {
		return loop, nil
	}

	state, err := m.store.LoadSlot(ctx, gameID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.loops[gameID]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	loop = m.newLoop(state)
	m.loops[gameID] = loop
	activeSessions.Inc()
	m.mu.Unlock()

	m.logger.Info("Game resumed from slot", zap.String("gameID", gameID), zap.Int("turns", state.TurnCount))
	// Слот без транскрипта получает вступительный ход в фоне, как при Create.
	if err := loop.StartAsync(); err != nil {
		m.logger.Warn("Opening turn not started", zap.String("gameID", gameID), zap.Error(err))
	}
	return loop, nil
}

// Resume opens the last autosaved session.
func (m *SessionManager) Resume(ctx context.Context) (*GameLoop, error) {
	state, err := m.store.LoadCurrent(ctx)
	if err != nil {
		return nil, err
	}
	return m.Get(ctx, state.ID)
}

// CloseSession stops the loop without touching its save slot.
func (m *SessionManager) CloseSession(gameID string) error {
	m.mu.Lock()
	loop, ok := m.loops[gameID]
	delete(m.loops, gameID)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrGameNotFound, gameID)
	}
	loop.Close()
	activeSessions.Dec()
	return nil
}

// DeleteSlot closes the loop if it is open and removes the save slot.
func (m *SessionManager) DeleteSlot(ctx context.Context, gameID string) error {
	_ = m.CloseSession(gameID)
	return m.store.DeleteSlot(ctx, gameID)
}

// CloseAll stops every open loop.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	loops := m.loops
	m.loops = make(map[string]*GameLoop)
	m.mu.Unlock()

	for _, loop := range loops {
		loop.Close()
		activeSessions.Dec()
	}
}

func (m *SessionManager) register(state *models.GameState) *GameLoop {
	m.mu.Lock()
	defer m.mu.Unlock()
	loop := m.newLoop(state)
	m.loops[state.ID] = loop
	activeSessions.Inc()
	return loop
}

func (m *SessionManager) newLoop(state *models.GameState) *GameLoop {
	return NewGameLoop(m.baseCtx, state, m.deps, m.logger)
}
