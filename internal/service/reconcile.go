package service

import (
	"strings"

	"ronpa-server/shared/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// characterNamespace - пространство имен для детерминированных id персонажей,
// которых модель прислала без id.
var characterNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("ronpa-server/character"))

// CharacterIDForName returns the stable id given to a new character that
// arrived without one. Same name, same id, so reconciliation stays idempotent.
func CharacterIDForName(name string) string {
	return "char-" + uuid.NewSHA1(characterNamespace, []byte(strings.TrimSpace(name))).String()
}

// CastReconciler сливает структурированный каст из ответа модели с живым кастом.
type CastReconciler struct {
	logger *zap.Logger
}

func NewCastReconciler(logger *zap.Logger) *CastReconciler {
	return &CastReconciler{logger: logger.Named("CastReconciler")}
}

// Reconcile returns the new live cast in the incoming order. Records are
// matched to the previous cast by exact name; characters missing from the
// update leave the cast. An empty update keeps the previous cast.
func (r *CastReconciler) Reconcile(prev, incoming []models.Character) []models.Character {
	if len(incoming) == 0 {
		return models.CloneCast(prev)
	}

	byName := make(map[string]models.Character, len(prev))
	for _, c := range prev {
		if _, seen := byName[c.Name]; !seen {
			byName[c.Name] = c
		}
	}

	merged := make([]models.Character, 0, len(incoming))
	seenNames := make(map[string]struct{}, len(incoming))
	for _, nc := range incoming {
		if _, dup := seenNames[nc.Name]; dup {
			r.logger.Warn("Duplicate name in cast update, keeping the first record", zap.String("name", nc.Name))
			continue
		}
		seenNames[nc.Name] = struct{}{}

		old, matched := byName[nc.Name]
		merged = append(merged, mergeCharacter(old, matched, nc))
	}

	if dups := models.DuplicateTitles(merged); len(dups) > 0 {
		r.logger.Warn("Ultimate titles are not unique within the cast", zap.Strings("titles", dups))
	}
	return merged
}

// mergeCharacter: поля новой записи побеждают, кроме avatarUrl (сохраняется
// старый, если нового нет) и статуса (не возвращается в ALIVE).
func mergeCharacter(old models.Character, matched bool, nc models.Character) models.Character {
	out := nc.Clone()
	out.History = nil // История живет только в архиве

	if out.Traits == nil {
		out.Traits = []string{}
	}

	if !matched {
		if out.ID == "" {
			out.ID = CharacterIDForName(out.Name)
		}
		if out.Status == "" {
			out.Status = models.StatusAlive
		}
		return out
	}

	if out.AvatarURL == "" {
		out.AvatarURL = old.AvatarURL
	}
	if out.ID == "" {
		out.ID = old.ID
	}
	if out.Status == "" {
		out.Status = old.Status
	}
	if old.Status != models.StatusAlive && old.Status != "" && out.Status == models.StatusAlive {
		out.Status = old.Status
	}
	if old.IsPlayer {
		out.IsPlayer = true
	}
	if out.ID == "" {
		out.ID = CharacterIDForName(out.Name)
	}
	if out.Status == "" {
		out.Status = models.StatusAlive
	}
	return out
}
