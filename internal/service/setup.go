package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"ronpa-server/shared/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Значения по умолчанию для новой игры.
const (
	DefaultTheme        = "Hope's Peak Academy"
	DefaultHostName     = "Monokuma"
	DefaultRestrictions = "No minors, no real people, no graphic gore."
	DefaultDescription  = "A mysterious student."
	DefaultOrigin       = "Unknown"
)

// SetupRequest - параметры новой игры. Пустые поля заменяются значениями
// по умолчанию.
type SetupRequest struct {
	Title        string          `json:"title"`
	Theme        string          `json:"theme"`
	HostName     string          `json:"hostName"`
	Restrictions *string         `json:"restrictions"` // nil = по умолчанию, "" = без ограничений
	Mode         models.GameMode `json:"mode"`
	// Characters - строки вида "name: description", по одной на персонажа.
	Characters string `json:"characters"`
	// ArchivePicks - id персонажей из архива, которые вернутся в новую игру.
	ArchivePicks []string `json:"archivePicks"`
}

// archiveReader - часть архива, нужная для сборки каста.
type archiveReader interface {
	Get(id string) (models.Character, bool)
}

// SetupService собирает начальное состояние игры.
type SetupService struct {
	archive archiveReader
	logger  *zap.Logger
	now     func() time.Time
	rnd     func(n int) int
}

func NewSetupService(archive archiveReader, logger *zap.Logger) *SetupService {
	return &SetupService{
		archive: archive,
		logger:  logger.Named("SetupService"),
		now:     time.Now,
		rnd:     rand.Intn,
	}
}

// NewGame builds a locked game in the INTRODUCTION phase. The transcript is
// empty, so the first GameLoop.Start runs the initialization turn.
func (s *SetupService) NewGame(ctx context.Context, req SetupRequest) (*models.GameState, error) {
	mode := req.Mode
	if mode == "" {
		mode = models.ModeWatch
	}
	if mode != models.ModeWatch && mode != models.ModeParticipate {
		return nil, fmt.Errorf("%w: unknown mode %q", models.ErrInvalidInput, req.Mode)
	}

	stamp := s.now().UnixMilli()
	cast := ParseCharacterLines(req.Characters, stamp)

	// Выбранные из архива персонажи сохраняют свой id: по нему архив
	// находит запись и дописывает историю матчей.
	taken := make(map[string]struct{}, len(cast)+len(req.ArchivePicks))
	for _, c := range cast {
		taken[c.ID] = struct{}{}
	}
	for _, id := range req.ArchivePicks {
		saved, ok := s.archive.Get(id)
		if !ok {
			return nil, fmt.Errorf("%w: archive entry %s", models.ErrCharacterNotFound, id)
		}
		if _, dup := taken[saved.ID]; dup {
			continue
		}
		taken[saved.ID] = struct{}{}
		pick := saved.Clone()
		pick.Status = models.StatusAlive
		pick.History = nil
		cast = append(cast, pick)
	}

	restrictions := DefaultRestrictions
	if req.Restrictions != nil {
		restrictions = strings.TrimSpace(*req.Restrictions)
	}

	state := &models.GameState{
		ID:           "game-" + uuid.NewString(),
		Title:        orDefault(req.Title, fmt.Sprintf("Killing Game #%d", 1000+s.rnd(9000))),
		IsLocked:     true,
		Phase:        models.PhaseIntroduction,
		Mode:         mode,
		Theme:        orDefault(req.Theme, DefaultTheme),
		HostName:     orDefault(req.HostName, DefaultHostName),
		Restrictions: restrictions,
		Characters:   cast,
		Evidence:     []models.Evidence{},
		Messages:     []models.ChatMessage{},
	}
	s.logger.Info("New game prepared",
		zap.String("gameID", state.ID),
		zap.String("title", state.Title),
		zap.Int("cast", len(cast)),
		zap.Int("archivePicks", len(req.ArchivePicks)),
	)
	return state, nil
}

// ParseCharacterLines turns "name: description" lines into ALIVE characters.
// Blank lines are skipped; a missing description gets the default one.
func ParseCharacterLines(text string, stamp int64) []models.Character {
	var cast []models.Character
	idx := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		name, desc, _ := strings.Cut(line, ":")
		cast = append(cast, models.Character{
			ID:          fmt.Sprintf("char-%d-%d", idx, stamp),
			Name:        strings.TrimSpace(name),
			Description: orDefault(desc, DefaultDescription),
			Status:      models.StatusAlive,
			Origin:      DefaultOrigin,
			Traits:      []string{},
		})
		idx++
	}
	if cast == nil {
		cast = []models.Character{}
	}
	return cast
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
