package service

import (
	"context"
	"errors"
	"sync"

	"ronpa-server/shared/models"

	"go.uber.org/zap"
)

// UpsertMode - режим записи персонажа в архив.
type UpsertMode int

const (
	// UpsertFull вставляет отсутствующую запись или заменяет поля существующей.
	UpsertFull UpsertMode = iota
	// UpsertUpdateOnly ничего не делает, если записи с таким id нет.
	UpsertUpdateOnly
)

// archivePersister - часть SessionStore, нужная архиву.
type archivePersister interface {
	LoadArchive(ctx context.Context) ([]models.Character, error)
	WriteArchive(ctx context.Context, archive []models.Character) error
}

// Archive - межигровой архив персонажей (id -> Character) с O(1) проверкой
// "сохранен ли". History принадлежит архиву и переживает любые upsert'ы.
type Archive struct {
	mu      sync.RWMutex
	entries []models.Character
	index   map[string]int // id -> позиция в entries, он же набор сохраненных id
	store   archivePersister
	logger  *zap.Logger
}

// NewArchive loads the archive once. A corrupt archive degrades to whatever
// entries survived validation; the error is logged, not returned.
func NewArchive(ctx context.Context, store archivePersister, logger *zap.Logger) (*Archive, error) {
	a := &Archive{
		store:  store,
		logger: logger.Named("Archive"),
		index:  make(map[string]int),
	}
	entries, err := store.LoadArchive(ctx)
	if err != nil {
		if !errors.Is(err, models.ErrCorruptState) {
			return nil, err
		}
		a.logger.Warn("Archive loaded with corrupt entries dropped", zap.Error(err))
	}
	for _, c := range entries {
		if _, dup := a.index[c.ID]; dup {
			continue
		}
		a.index[c.ID] = len(a.entries)
		a.entries = append(a.entries, c.Clone())
	}
	return a, nil
}

// upsertLocked applies one upsert in memory. Caller holds mu.
func (a *Archive) upsertLocked(c models.Character, mode UpsertMode) bool {
	if c.ID == "" {
		return false
	}
	idx, exists := a.index[c.ID]
	if !exists && mode == UpsertUpdateOnly {
		return false
	}

	entry := c.Clone()
	if exists {
		// История принадлежит архиву: входящая запись ее никогда не заменяет.
		entry.History = append([]models.MatchHistory{}, a.entries[idx].History...)
		a.entries[idx] = entry
		return true
	}
	if entry.History == nil {
		entry.History = []models.MatchHistory{}
	}
	a.index[entry.ID] = len(a.entries)
	a.entries = append(a.entries, entry)
	return true
}

// Upsert writes one character and persists the archive when something changed.
func (a *Archive) Upsert(ctx context.Context, c models.Character, mode UpsertMode) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.upsertLocked(c, mode) {
		return false, nil
	}
	return true, a.persistLocked(ctx)
}

// UpsertAll writes a batch with a single persist. Returns the ids that were written.
func (a *Archive) UpsertAll(ctx context.Context, cast []models.Character, mode UpsertMode) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var written []string
	for _, c := range cast {
		if a.upsertLocked(c, mode) {
			written = append(written, c.ID)
		}
	}
	if len(written) == 0 {
		return nil, nil
	}
	return written, a.persistLocked(ctx)
}

// OutcomeForStatus maps the final life status of a contestant to a match outcome.
func OutcomeForStatus(status models.CharacterStatus) models.MatchOutcome {
	switch status {
	case models.StatusAlive:
		return models.OutcomeSurvivor
	case models.StatusDead:
		return models.OutcomeVictim
	case models.StatusExecuted:
		return models.OutcomeCulprit
	default:
		return models.OutcomeUnknown
	}
}

// RecordOutcomes appends one history line per archived cast member of a
// finished game. Characters that were never archived are skipped.
func (a *Archive) RecordOutcomes(ctx context.Context, gameTitle string, cast []models.Character) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	recorded := 0
	for _, c := range cast {
		idx, ok := a.index[c.ID]
		if !ok {
			continue
		}
		outcome := OutcomeForStatus(c.Status)
		a.entries[idx].History = append(a.entries[idx].History, models.MatchHistory{
			GameTitle: gameTitle,
			Outcome:   outcome,
			Details:   outcomeDetails(outcome),
		})
		recorded++
	}
	if recorded == 0 {
		return 0, nil
	}
	return recorded, a.persistLocked(ctx)
}

func outcomeDetails(outcome models.MatchOutcome) string {
	switch outcome {
	case models.OutcomeSurvivor:
		return "Survived the killing game"
	case models.OutcomeVictim:
		return "Killed during the killing game"
	case models.OutcomeCulprit:
		return "Executed after a class trial"
	default:
		return "Fate unknown"
	}
}

func (a *Archive) persistLocked(ctx context.Context) error {
	snapshot := models.CloneCast(a.entries)
	if err := a.store.WriteArchive(ctx, snapshot); err != nil {
		a.logger.Error("Failed to persist archive", zap.Int("entries", len(snapshot)), zap.Error(err))
		return err
	}
	return nil
}

// IsSaved reports whether a character with this id is in the archive.
func (a *Archive) IsSaved(id string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.index[id]
	return ok
}

// Get returns an archived character.
func (a *Archive) Get(id string) (models.Character, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	idx, ok := a.index[id]
	if !ok {
		return models.Character{}, false
	}
	return a.entries[idx].Clone(), true
}

// List returns a copy of the archive in insertion order.
func (a *Archive) List() []models.Character {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return models.CloneCast(a.entries)
}

// Len is the number of archived characters.
func (a *Archive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}
