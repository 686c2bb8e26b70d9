package domain

import (
	"fmt"
	"sort"
	"strings"

	"ronpa-server/shared/models"
)

// PhaseTrigger - строка таблицы переходов: фраза-триггер ведет в фазу Phase.
type PhaseTrigger struct {
	Phase   models.GamePhase
	Phrases []string
}

// DefaultPhaseTriggers returns the built-in trigger table in arc order.
func DefaultPhaseTriggers() []PhaseTrigger {
	return []PhaseTrigger{
		{Phase: models.PhaseDailyLife, Phrases: []string{"daily life"}},
		{Phase: models.PhaseIncident, Phrases: []string{"body has been discovered"}},
		{Phase: models.PhaseInvestigation, Phrases: []string{"investigation begin"}},
		{Phase: models.PhaseTrial, Phrases: []string{"it is time for the class trial"}},
		{Phase: models.PhaseResolution, Phrases: []string{"execution time"}},
		{Phase: models.PhaseEndgame, Phrases: []string{"killing game has ended", "game over"}},
	}
}

// ParsePhaseTriggers builds a trigger table from PHASE -> "phrase|phrase" pairs.
// Rows are ordered by arc position so the override rule stays deterministic.
func ParsePhaseTriggers(raw map[string]string) ([]PhaseTrigger, error) {
	triggers := make([]PhaseTrigger, 0, len(raw))
	for key, value := range raw {
		phase := models.GamePhase(strings.ToUpper(strings.TrimSpace(key)))
		if !phase.Valid() {
			return nil, fmt.Errorf("%w: unknown phase %q in trigger table", models.ErrInvalidInput, key)
		}
		if phase == models.PhaseSetup || phase == models.PhaseIntroduction {
			return nil, fmt.Errorf("%w: phase %s cannot be entered by narration", models.ErrInvalidInput, phase)
		}
		var phrases []string
		for _, p := range strings.Split(value, "|") {
			if p = strings.TrimSpace(p); p != "" {
				phrases = append(phrases, p)
			}
		}
		if len(phrases) == 0 {
			return nil, fmt.Errorf("%w: no phrases for phase %s", models.ErrInvalidInput, phase)
		}
		triggers = append(triggers, PhaseTrigger{Phase: phase, Phrases: phrases})
	}
	sort.SliceStable(triggers, func(i, j int) bool {
		return triggers[i].Phase.Rank() < triggers[j].Phase.Rank()
	})
	return triggers, nil
}

// PhaseDetector - чистая функция (фаза, текст) -> фаза на основе таблицы триггеров.
type PhaseDetector struct {
	triggers []PhaseTrigger
}

// NewPhaseDetector копирует таблицу и приводит фразы к нижнему регистру.
// Пустая таблица означает таблицу по умолчанию.
func NewPhaseDetector(triggers []PhaseTrigger) *PhaseDetector {
	if len(triggers) == 0 {
		triggers = DefaultPhaseTriggers()
	}
	rows := make([]PhaseTrigger, len(triggers))
	for i, t := range triggers {
		phrases := make([]string, 0, len(t.Phrases))
		for _, p := range t.Phrases {
			phrases = append(phrases, strings.ToLower(p))
		}
		rows[i] = PhaseTrigger{Phase: t.Phase, Phrases: phrases}
	}
	return &PhaseDetector{triggers: rows}
}

// Next evaluates every row against the text (case-insensitive substring).
// Among matching rows that move the arc forward the last one wins; without
// such a match the phase stays. ENDGAME is terminal.
func (d *PhaseDetector) Next(current models.GamePhase, text string) models.GamePhase {
	if current == models.PhaseEndgame {
		return current
	}
	lower := strings.ToLower(text)
	next := current
	for _, row := range d.triggers {
		if row.Phase.Rank() <= current.Rank() || !containsAny(lower, row.Phrases) {
			continue
		}
		next = row.Phase
	}
	return next
}

// Triggers returns a copy of the active table.
func (d *PhaseDetector) Triggers() []PhaseTrigger {
	out := make([]PhaseTrigger, len(d.triggers))
	for i, t := range d.triggers {
		out[i] = PhaseTrigger{Phase: t.Phase, Phrases: append([]string(nil), t.Phrases...)}
	}
	return out
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(text, p) {
			return true
		}
	}
	return false
}
