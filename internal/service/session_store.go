package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ronpa-server/shared/interfaces"
	"ronpa-server/shared/models"
	"ronpa-server/shared/schemas"

	"go.uber.org/zap"
)

// Ключи хранилища. Значения перезаписываются целиком.
const (
	KeyCurrentSession = "dr_current_session"
	KeySaveSlots      = "dr_save_slots"
	KeyArchive        = "dr_gallery"
)

// SessionStore - слой персистентности поверх KVStore: текущая сессия,
// карта слотов сохранения и архив персонажей. Все загрузки проверяются
// схемой; битые записи отбрасываются, а вызывающий получает CorruptStateError
// вместе с очищенным результатом.
type SessionStore struct {
	kv     interfaces.KVStore
	logger *zap.Logger
	now    func() time.Time

	// slotsMu сериализует read-modify-write карты слотов
	slotsMu sync.Mutex
}

func NewSessionStore(kv interfaces.KVStore, logger *zap.Logger) *SessionStore {
	return &SessionStore{
		kv:     kv,
		logger: logger.Named("SessionStore"),
		now:    time.Now,
	}
}

// Autosave writes the state to the current-session key and upserts its slot
// with lastPlayed = now.
func (s *SessionStore) Autosave(ctx context.Context, state *models.GameState) error {
	if state == nil {
		return fmt.Errorf("%w: nil game state", models.ErrInvalidInput)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal game state: %w", err)
	}
	if err := s.kv.Set(ctx, KeyCurrentSession, data); err != nil {
		return fmt.Errorf("write current session: %w", err)
	}

	s.slotsMu.Lock()
	defer s.slotsMu.Unlock()

	slots, err := s.readSlots(ctx)
	if err != nil && !errors.Is(err, models.ErrCorruptState) {
		return err
	}
	slots[state.ID] = models.SaveSlot{
		ID:         state.ID,
		Title:      state.Title,
		LastPlayed: s.now().UnixMilli(),
		State:      state,
	}
	return s.writeSlots(ctx, slots)
}

// LoadCurrent returns the last autosaved session.
// Returns models.ErrNotFound if nothing has been saved yet.
func (s *SessionStore) LoadCurrent(ctx context.Context) (*models.GameState, error) {
	data, err := s.kv.Get(ctx, KeyCurrentSession)
	if err != nil {
		return nil, err
	}
	return decodeGameState(KeyCurrentSession, data)
}

// ListSlots returns all save slots, most recently played first.
func (s *SessionStore) ListSlots(ctx context.Context) ([]models.SaveSlot, error) {
	s.slotsMu.Lock()
	slots, err := s.readSlots(ctx)
	s.slotsMu.Unlock()

	out := make([]models.SaveSlot, 0, len(slots))
	for _, slot := range slots {
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastPlayed == out[j].LastPlayed {
			return out[i].ID < out[j].ID
		}
		return out[i].LastPlayed > out[j].LastPlayed
	})
	return out, err
}

// LoadSlot returns the saved state of one game.
func (s *SessionStore) LoadSlot(ctx context.Context, gameID string) (*models.GameState, error) {
	s.slotsMu.Lock()
	slots, err := s.readSlots(ctx)
	s.slotsMu.Unlock()
	if err != nil && !errors.Is(err, models.ErrCorruptState) {
		return nil, err
	}
	slot, ok := slots[gameID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrGameNotFound, gameID)
	}
	return slot.State, nil
}

// DeleteSlot removes a slot. Deleting an absent slot is not an error.
func (s *SessionStore) DeleteSlot(ctx context.Context, gameID string) error {
	s.slotsMu.Lock()
	defer s.slotsMu.Unlock()

	slots, err := s.readSlots(ctx)
	if err != nil && !errors.Is(err, models.ErrCorruptState) {
		return err
	}
	if _, ok := slots[gameID]; !ok {
		return nil
	}
	delete(slots, gameID)
	return s.writeSlots(ctx, slots)
}

// LoadArchive returns the saved character archive in stored order.
func (s *SessionStore) LoadArchive(ctx context.Context) ([]models.Character, error) {
	data, err := s.kv.Get(ctx, KeyArchive)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return []models.Character{}, nil
		}
		return []models.Character{}, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("Archive is not a JSON array, starting empty", zap.Error(err))
		return []models.Character{}, &models.CorruptStateError{Key: KeyArchive, Err: err}
	}

	out := make([]models.Character, 0, len(raw))
	var errs []error
	for i, item := range raw {
		c, err := decodeCharacter(item)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		out = append(out, c)
	}
	if len(errs) > 0 {
		s.logger.Warn("Dropped corrupt archive entries", zap.Int("dropped", len(errs)), zap.Int("kept", len(out)))
		return out, &models.CorruptStateError{Key: KeyArchive, Err: errors.Join(errs...)}
	}
	return out, nil
}

// WriteArchive overwrites the whole archive.
func (s *SessionStore) WriteArchive(ctx context.Context, archive []models.Character) error {
	if archive == nil {
		archive = []models.Character{}
	}
	data, err := json.Marshal(archive)
	if err != nil {
		return fmt.Errorf("marshal archive: %w", err)
	}
	if err := s.kv.Set(ctx, KeyArchive, data); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	return nil
}

// readSlots must be called with slotsMu held. On corruption it returns the
// surviving slots together with a CorruptStateError.
func (s *SessionStore) readSlots(ctx context.Context) (map[string]models.SaveSlot, error) {
	slots := make(map[string]models.SaveSlot)

	data, err := s.kv.Get(ctx, KeySaveSlots)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return slots, nil
		}
		return slots, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("Save slots are not a JSON object, starting empty", zap.Error(err))
		return slots, &models.CorruptStateError{Key: KeySaveSlots, Err: err}
	}

	var errs []error
	for id, item := range raw {
		if err := schemas.Validate(schemas.KindSaveSlot, item); err != nil {
			errs = append(errs, fmt.Errorf("slot %s: %w", id, err))
			continue
		}
		var slot models.SaveSlot
		if err := json.Unmarshal(item, &slot); err != nil {
			errs = append(errs, fmt.Errorf("slot %s: %w", id, err))
			continue
		}
		slots[id] = slot
	}
	if len(errs) > 0 {
		s.logger.Warn("Dropped corrupt save slots", zap.Int("dropped", len(errs)), zap.Int("kept", len(slots)))
		return slots, &models.CorruptStateError{Key: KeySaveSlots, Err: errors.Join(errs...)}
	}
	return slots, nil
}

func (s *SessionStore) writeSlots(ctx context.Context, slots map[string]models.SaveSlot) error {
	data, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("marshal save slots: %w", err)
	}
	if err := s.kv.Set(ctx, KeySaveSlots, data); err != nil {
		return fmt.Errorf("write save slots: %w", err)
	}
	return nil
}

func decodeGameState(key string, data []byte) (*models.GameState, error) {
	if err := schemas.Validate(schemas.KindGameState, data); err != nil {
		return nil, &models.CorruptStateError{Key: key, Err: err}
	}
	var state models.GameState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, &models.CorruptStateError{Key: key, Err: err}
	}
	return &state, nil
}

func decodeCharacter(data []byte) (models.Character, error) {
	if err := schemas.Validate(schemas.KindCharacter, data); err != nil {
		return models.Character{}, err
	}
	var c models.Character
	if err := json.Unmarshal(data, &c); err != nil {
		return models.Character{}, err
	}
	return c, nil
}
