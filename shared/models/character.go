package models

import "strings"

// CharacterStatus - жизненный статус участника игры.
type CharacterStatus string

const (
	StatusAlive    CharacterStatus = "ALIVE"
	StatusDead     CharacterStatus = "DEAD"
	StatusExecuted CharacterStatus = "EXECUTED"
)

// Valid reports whether s is one of the known statuses.
func (s CharacterStatus) Valid() bool {
	switch s {
	case StatusAlive, StatusDead, StatusExecuted:
		return true
	}
	return false
}

// MatchOutcome - итог участия персонажа в одной завершенной игре.
type MatchOutcome string

const (
	OutcomeSurvivor   MatchOutcome = "SURVIVOR"
	OutcomeVictim     MatchOutcome = "VICTIM"
	OutcomeCulprit    MatchOutcome = "CULPRIT"
	OutcomeMastermind MatchOutcome = "MASTERMIND"
	OutcomeUnknown    MatchOutcome = "UNKNOWN"
)

// MatchHistory is one line of a character's career across killing games.
// Owned by the archive, never by a single game's live cast.
type MatchHistory struct {
	GameTitle string       `json:"gameTitle"`
	Outcome   MatchOutcome `json:"outcome"`
	Details   string       `json:"details"` // e.g. "Killed by X in Chapter 2"
}

// Character - участник игры.
type Character struct {
	ID            string          `json:"id"`                      // Стабильный ID, ключ архива
	Name          string          `json:"name"`                    // Ключ сопоставления в пределах одной игры
	UltimateTitle string          `json:"ultimateTitle,omitempty"` // Уникален в пределах каста
	Origin        string          `json:"origin"`                  // IP, из которого пришел персонаж, или "Original"
	Traits        []string        `json:"traits"`
	Backstory     string          `json:"backstory"`
	Description   string          `json:"description"`
	Status        CharacterStatus `json:"status"`
	AvatarURL     string          `json:"avatarUrl,omitempty"` // Однажды заданный, переживает любые обновления без аватара
	IsPlayer      bool            `json:"isPlayer,omitempty"`
	History       []MatchHistory  `json:"history,omitempty"` // Только в архиве
}

// Clone returns a deep copy so callers can mutate slices freely.
func (c Character) Clone() Character {
	out := c
	if c.Traits != nil {
		out.Traits = append([]string(nil), c.Traits...)
	}
	if c.History != nil {
		out.History = append([]MatchHistory(nil), c.History...)
	}
	return out
}

// IsAlive is a shorthand used by the roster views.
func (c Character) IsAlive() bool {
	return c.Status == StatusAlive
}

// CloneCast deep-copies a cast list.
func CloneCast(cast []Character) []Character {
	if cast == nil {
		return nil
	}
	out := make([]Character, len(cast))
	for i, c := range cast {
		out[i] = c.Clone()
	}
	return out
}

// DuplicateTitles returns every ultimate title carried by more than one
// character of the cast (case-insensitive). Empty titles are ignored.
func DuplicateTitles(cast []Character) []string {
	seen := make(map[string]int, len(cast))
	var dups []string
	for _, c := range cast {
		key := strings.ToLower(strings.TrimSpace(c.UltimateTitle))
		if key == "" {
			continue
		}
		seen[key]++
		if seen[key] == 2 {
			dups = append(dups, c.UltimateTitle)
		}
	}
	return dups
}

// CountAlive returns the number of living cast members.
func CountAlive(cast []Character) int {
	n := 0
	for _, c := range cast {
		if c.IsAlive() {
			n++
		}
	}
	return n
}
