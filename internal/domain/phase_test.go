package domain

import (
	"testing"

	"ronpa-server/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseDetector_ScriptedArc(t *testing.T) {
	d := NewPhaseDetector(nil)
	script := []struct {
		text string
		want models.GamePhase
	}{
		{"Welcome, students, to your new school life!", models.PhaseIntroduction},
		{"And so our daily life begins in earnest.", models.PhaseDailyLife},
		{"Ding dong! A body has been discovered!", models.PhaseIncident},
		{"Let the investigation begin!", models.PhaseInvestigation},
		{"It is time for the class trial. Gather at the elevator.", models.PhaseTrial},
		{"The culprit is found. It's execution time!", models.PhaseResolution},
		{"GAME OVER. Thanks for playing.", models.PhaseEndgame},
	}

	phase := models.PhaseIntroduction
	var seen []models.GamePhase
	for _, step := range script {
		next := d.Next(phase, step.text)
		assert.GreaterOrEqual(t, next.Rank(), phase.Rank(), "phase regressed on %q", step.text)
		phase = next
		seen = append(seen, phase)
		assert.Equal(t, step.want, phase, step.text)
	}
	assert.Equal(t, models.AllPhases()[1:], seen)
}

func TestPhaseDetector_Next(t *testing.T) {
	d := NewPhaseDetector(nil)
	tests := []struct {
		name    string
		current models.GamePhase
		text    string
		want    models.GamePhase
	}{
		{"no trigger keeps phase", models.PhaseDailyLife, "Nothing happens.", models.PhaseDailyLife},
		{"backward trigger ignored", models.PhaseTrial, "Back to daily life, sort of.", models.PhaseTrial},
		{"case insensitive", models.PhaseDailyLife, "A BODY HAS BEEN DISCOVERED", models.PhaseIncident},
		{"latest matching row wins", models.PhaseDailyLife, "A body has been discovered... let the investigation begin", models.PhaseInvestigation},
		{"may skip phases", models.PhaseIntroduction, "game over", models.PhaseEndgame},
		{"endgame is terminal", models.PhaseEndgame, "daily life", models.PhaseEndgame},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Next(tt.current, tt.text))
		})
	}
}

func TestPhaseDetector_CustomTable(t *testing.T) {
	d := NewPhaseDetector([]PhaseTrigger{
		{Phase: models.PhaseIncident, Phrases: []string{"Murder Alarm"}},
	})
	assert.Equal(t, models.PhaseIncident, d.Next(models.PhaseDailyLife, "the murder alarm rings"))
	assert.Equal(t, models.PhaseDailyLife, d.Next(models.PhaseDailyLife, "a body has been discovered"))
	assert.Equal(t, []string{"murder alarm"}, d.Triggers()[0].Phrases)
}

func TestParsePhaseTriggers(t *testing.T) {
	t.Run("valid table ordered by arc", func(t *testing.T) {
		got, err := ParsePhaseTriggers(map[string]string{
			"endgame":    "fin | the end",
			"INCIDENT":   "alarm",
			"DAILY_LIFE": "morning bell",
		})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, models.PhaseDailyLife, got[0].Phase)
		assert.Equal(t, models.PhaseIncident, got[1].Phase)
		assert.Equal(t, models.PhaseEndgame, got[2].Phase)
		assert.Equal(t, []string{"fin", "the end"}, got[2].Phrases)
	})

	errCases := map[string]map[string]string{
		"unknown phase":     {"LUNCH": "noon"},
		"setup not allowed": {"SETUP": "x"},
		"intro not allowed": {"INTRODUCTION": "x"},
		"no phrases":        {"TRIAL": " | "},
	}
	for name, raw := range errCases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePhaseTriggers(raw)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}
}
