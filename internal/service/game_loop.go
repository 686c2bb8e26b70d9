package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ronpa-server/internal/domain"
	"ronpa-server/pkg/ai"
	"ronpa-server/shared/interfaces"
	"ronpa-server/shared/models"

	"go.uber.org/zap"
)

// statePersister - часть SessionStore, нужная игровому циклу.
type statePersister interface {
	Autosave(ctx context.Context, state *models.GameState) error
}

// GameLoopDeps - зависимости игрового цикла. Sink, Speaker и Avatars
// необязательны.
type GameLoopDeps struct {
	Host       interfaces.NarrationHost
	Store      statePersister
	Archive    *Archive
	Reconciler *CastReconciler
	Phases     *domain.PhaseDetector
	Sink       interfaces.DisplaySink
	Speaker    interfaces.Speaker
	Avatars    interfaces.AvatarGenerator
	AutoPlay   AutoPlayConfig
	Scheduler  Scheduler
}

// GameLoop - оркестратор ходов одной игры. Одновременно выполняется не
// больше одного запроса к ведущему; остальные ходы отклоняются с
// models.ErrTurnInProgress, транскрипт при этом не меняется.
type GameLoop struct {
	mu    sync.Mutex
	state *models.GameState

	// archiveMu упорядочивает записи этой игры в архив. Берется до mu;
	// состав читается под ним, поэтому запись аватара не теряется.
	archiveMu sync.Mutex

	inFlight  atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	host       interfaces.NarrationHost
	store      statePersister
	archive    *Archive
	reconciler *CastReconciler
	phases     *domain.PhaseDetector
	sink       interfaces.DisplaySink
	speaker    interfaces.Speaker
	autoplay   *AutoPlay
	avatars    *AvatarWorker
	now        func() time.Time
	logger     *zap.Logger
}

// turnRequest описывает один ход.
type turnRequest struct {
	input      string
	appendUser bool // false для системных ходов (инициализация, continue)
	manual     bool // ручной ход сбрасывает счетчик авто-режима
}

// NewGameLoop wraps state (taken over by the loop) into a running session.
// ctx bounds the lifetime of background work: auto-play turns and avatars.
func NewGameLoop(ctx context.Context, state *models.GameState, deps GameLoopDeps, logger *zap.Logger) *GameLoop {
	loopCtx, cancel := context.WithCancel(ctx)
	l := &GameLoop{
		state:      state,
		ctx:        loopCtx,
		cancel:     cancel,
		host:       deps.Host,
		store:      deps.Store,
		archive:    deps.Archive,
		reconciler: deps.Reconciler,
		phases:     deps.Phases,
		sink:       deps.Sink,
		speaker:    deps.Speaker,
		now:        time.Now,
		logger:     logger.Named("GameLoop").With(zap.String("gameID", state.ID)),
	}
	if l.sink == nil {
		l.sink = nopSink{}
	}
	if l.speaker == nil {
		l.speaker = nopSpeaker{}
	}
	if l.reconciler == nil {
		l.reconciler = NewCastReconciler(logger)
	}
	if l.phases == nil {
		l.phases = domain.NewPhaseDetector(nil)
	}
	l.autoplay = NewAutoPlay(deps.AutoPlay, deps.Scheduler, l.autoTurn, logger)
	if deps.Avatars != nil {
		l.avatars = NewAvatarWorker(deps.Avatars, l, logger)
	}
	return l
}

// ID returns the game id.
func (l *GameLoop) ID() string {
	return l.state.ID
}

// State returns a snapshot of the live state.
func (l *GameLoop) State() *models.GameState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Clone()
}

// Busy reports whether a narration turn is streaming.
func (l *GameLoop) Busy() bool {
	return l.inFlight.Load()
}

// AutoPlayEnabled reports whether auto-play is on.
func (l *GameLoop) AutoPlayEnabled() bool {
	return l.autoplay.Enabled()
}

// Start runs the opening turn for a game without messages. A resumed game
// only republishes its state and restarts avatar generation.
func (l *GameLoop) Start(ctx context.Context) error {
	req, fresh := l.startRequest()
	if !fresh {
		l.sink.StateChanged(l.State())
		l.avatars.Kick(l.ctx)
		return nil
	}
	if err := l.beginTurn(); err != nil {
		return err
	}
	return l.runTurn(ctx, req)
}

// StartAsync is Start without waiting for the narration.
func (l *GameLoop) StartAsync() error {
	req, fresh := l.startRequest()
	if !fresh {
		return l.Start(l.ctx)
	}
	return l.goTurn(req)
}

func (l *GameLoop) startRequest() (turnRequest, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.state.Messages) > 0 {
		return turnRequest{}, false
	}
	return turnRequest{input: ai.InitialInput(l.state.Title)}, true
}

// Submit plays a manual turn with the player's input and waits for it.
func (l *GameLoop) Submit(ctx context.Context, input string) error {
	req, err := submitRequest(input)
	if err != nil {
		return err
	}
	if err := l.beginTurn(); err != nil {
		return err
	}
	return l.runTurn(ctx, req)
}

// SubmitAsync queues the turn and returns once it has been accepted.
// The outcome is observable through the display sink.
func (l *GameLoop) SubmitAsync(input string) error {
	req, err := submitRequest(input)
	if err != nil {
		return err
	}
	return l.goTurn(req)
}

func submitRequest(input string) (turnRequest, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return turnRequest{}, fmt.Errorf("%w: empty input", models.ErrInvalidInput)
	}
	return turnRequest{input: input, appendUser: true, manual: true}, nil
}

// Continue asks the host to advance the story without player input.
func (l *GameLoop) Continue(ctx context.Context) error {
	if err := l.beginTurn(); err != nil {
		return err
	}
	return l.runTurn(ctx, turnRequest{input: ai.ContinueInput})
}

// ContinueAsync is Continue without waiting.
func (l *GameLoop) ContinueAsync() error {
	return l.goTurn(turnRequest{input: ai.ContinueInput})
}

// SetAutoPlay toggles auto-play. Enabling schedules the first automatic turn
// unless the narrator is waiting for a decision.
func (l *GameLoop) SetAutoPlay(on bool) {
	if !on {
		l.autoplay.Disable()
		return
	}
	l.autoplay.Enable()
	l.evaluateAutoPlay()
}

// SetMuted toggles speech.
func (l *GameLoop) SetMuted(muted bool) {
	l.speaker.SetMuted(muted)
}

// SaveCharacterProfile copies a live cast member into the archive.
func (l *GameLoop) SaveCharacterProfile(ctx context.Context, characterID string) error {
	l.archiveMu.Lock()
	defer l.archiveMu.Unlock()

	l.mu.Lock()
	c, ok := l.state.FindCharacter(characterID)
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrCharacterNotFound, characterID)
	}
	if _, err := l.archive.Upsert(ctx, c.Clone(), UpsertFull); err != nil {
		return fmt.Errorf("save character profile: %w", err)
	}
	return nil
}

// Close stops auto-play, aborts a streaming turn and cancels avatar work.
// Safe to call more than once.
func (l *GameLoop) Close() {
	l.closeOnce.Do(func() {
		l.autoplay.Disable()
		l.cancel()
		l.avatars.Close()
		l.logger.Info("Game loop closed")
	})
}

// beginTurn takes the single in-flight slot.
func (l *GameLoop) beginTurn() error {
	if l.ctx.Err() != nil {
		return models.ErrSessionClosed
	}
	if !l.inFlight.CompareAndSwap(false, true) {
		return models.ErrTurnInProgress
	}
	return nil
}

func (l *GameLoop) goTurn(req turnRequest) error {
	if err := l.beginTurn(); err != nil {
		return err
	}
	go func() {
		// Ошибка уже залогирована и отражена в sink.
		_ = l.runTurn(l.ctx, req)
	}()
	return nil
}

func (l *GameLoop) autoTurn() {
	if err := l.ContinueAsync(); err != nil {
		l.logger.Debug("Automatic turn skipped", zap.Error(err))
	}
}

// runTurn выполняет ход; вызывающий уже занял слот через beginTurn.
func (l *GameLoop) runTurn(ctx context.Context, req turnRequest) error {
	started := l.now()
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(l.ctx, cancel)
	defer stop()

	l.mu.Lock()
	// Промпт строится по состоянию до добавления реплики игрока:
	// ввод передается ведущему отдельно.
	prompt := l.state.Clone()
	before := len(l.state.Messages)
	if req.appendUser {
		l.state.Messages = append(l.state.Messages, models.ChatMessage{
			Role:      models.RoleUserMessage,
			Content:   req.input,
			Timestamp: l.now().UnixMilli(),
		})
	}
	snapshot := l.state.Clone()
	l.mu.Unlock()

	if req.manual {
		l.autoplay.ResetCount()
	}
	if req.appendUser {
		if err := l.store.Autosave(context.WithoutCancel(turnCtx), snapshot); err != nil {
			l.logger.Error("Autosave of player input failed", zap.Error(err))
		}
		l.sink.StateChanged(snapshot)
	}

	log := l.logger.With(zap.Int("turn", prompt.TurnCount+1))
	var streamed strings.Builder
	full, err := l.host.StreamNarration(turnCtx, prompt, req.input, func(fragment string) {
		streamed.WriteString(fragment)
		l.sink.StreamUpdated(prompt.ID, ai.StripPartial(streamed.String()))
	})
	l.sink.StreamCleared(prompt.ID)

	if err != nil {
		l.mu.Lock()
		l.state.Messages = l.state.Messages[:before]
		rolledBack := l.state.Clone()
		l.mu.Unlock()

		l.autoplay.Disable()
		if req.appendUser {
			if err := l.store.Autosave(context.WithoutCancel(turnCtx), rolledBack); err != nil {
				log.Error("Autosave of restored transcript failed", zap.Error(err))
			}
		}
		l.sink.StateChanged(rolledBack)
		turnsTotal.WithLabelValues("failed").Inc()
		l.inFlight.Store(false)
		log.Warn("Narration turn failed, transcript restored", zap.Error(err))
		return fmt.Errorf("narration turn: %w", err)
	}

	committed, display := l.commit(context.WithoutCancel(turnCtx), full, log)
	turnsTotal.WithLabelValues("committed").Inc()
	turnDuration.Observe(l.now().Sub(started).Seconds())
	l.inFlight.Store(false)

	l.sink.StateChanged(committed)
	l.speaker.Speak(display)
	l.avatars.Kick(l.ctx)
	l.evaluateAutoPlay()
	return nil
}

// commit applies the finished narration to the live state and persists it.
// Persistence failures are logged; the turn stays committed in memory.
func (l *GameLoop) commit(ctx context.Context, full string, log *zap.Logger) (*models.GameState, string) {
	parsed := ai.ParseNarration(full)
	if parsed.Err != nil {
		malformedPayloads.Inc()
		log.Warn("Structured cast update ignored", zap.Error(parsed.Err))
	}
	castUpdated := parsed.Found && parsed.Err == nil

	l.mu.Lock()
	if castUpdated {
		l.state.Characters = l.reconciler.Reconcile(l.state.Characters, parsed.Cast)
	}
	prevPhase := l.state.Phase
	l.state.Phase = l.phases.Next(prevPhase, parsed.DisplayText)
	l.state.Messages = append(l.state.Messages, models.ChatMessage{
		Role:      models.RoleModelMessage,
		Content:   parsed.DisplayText,
		Timestamp: l.now().UnixMilli(),
	})
	l.state.TurnCount++
	snapshot := l.state.Clone()
	l.mu.Unlock()

	if snapshot.Phase != prevPhase {
		log.Info("Phase changed", zap.String("from", string(prevPhase)), zap.String("to", string(snapshot.Phase)))
	}
	if castUpdated {
		l.archiveCast(ctx, log)
	}
	if snapshot.Phase == models.PhaseEndgame && prevPhase != models.PhaseEndgame {
		if n, err := l.archive.RecordOutcomes(ctx, snapshot.Title, snapshot.Characters); err != nil {
			log.Error("Failed to record match outcomes", zap.Error(err))
		} else {
			log.Info("Match outcomes recorded", zap.Int("characters", n))
		}
	}
	if err := l.store.Autosave(ctx, snapshot); err != nil {
		log.Error("Autosave failed", zap.Error(err))
	}
	return snapshot, parsed.DisplayText
}

// archiveCast full-upserts the live cast as it is at write time.
func (l *GameLoop) archiveCast(ctx context.Context, log *zap.Logger) {
	l.archiveMu.Lock()
	defer l.archiveMu.Unlock()

	l.mu.Lock()
	cast := models.CloneCast(l.state.Characters)
	l.mu.Unlock()

	if _, err := l.archive.UpsertAll(ctx, cast, UpsertFull); err != nil {
		log.Error("Failed to archive cast", zap.Error(err))
	}
}

func (l *GameLoop) evaluateAutoPlay() {
	l.mu.Lock()
	last, ok := l.state.LastMessage()
	l.mu.Unlock()
	var lastPtr *models.ChatMessage
	if ok {
		lastPtr = &last
	}
	l.autoplay.Evaluate(lastPtr, l.inFlight.Load())
}

func (l *GameLoop) avatarCandidate() (models.Character, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.state.Characters {
		if c.AvatarURL == "" && strings.TrimSpace(c.UltimateTitle) != "" {
			return c.Clone(), true
		}
	}
	return models.Character{}, false
}

func (l *GameLoop) applyAvatar(ctx context.Context, characterID, ref string) error {
	l.archiveMu.Lock()
	l.mu.Lock()
	idx := -1
	for i := range l.state.Characters {
		if l.state.Characters[i].ID == characterID {
			idx = i
			break
		}
	}
	if idx < 0 {
		l.mu.Unlock()
		l.archiveMu.Unlock()
		return fmt.Errorf("%w: %s", models.ErrCharacterNotFound, characterID)
	}
	l.state.Characters[idx].AvatarURL = ref
	updated := l.state.Characters[idx].Clone()
	snapshot := l.state.Clone()
	l.mu.Unlock()

	if _, err := l.archive.Upsert(ctx, updated, UpsertUpdateOnly); err != nil {
		l.logger.Warn("Failed to store avatar in archive", zap.String("characterID", characterID), zap.Error(err))
	}
	l.archiveMu.Unlock()
	if err := l.store.Autosave(ctx, snapshot); err != nil {
		l.logger.Warn("Autosave after avatar failed", zap.Error(err))
	}
	l.sink.StateChanged(snapshot)
	return nil
}

type nopSink struct{}

func (nopSink) StreamUpdated(string, string)   {}
func (nopSink) StreamCleared(string)           {}
func (nopSink) StateChanged(*models.GameState) {}

type nopSpeaker struct{}

func (nopSpeaker) Speak(string)  {}
func (nopSpeaker) SetMuted(bool) {}
