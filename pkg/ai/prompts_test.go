package ai

import (
	"fmt"
	"testing"

	"ronpa-server/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildNarrationMessages_Window(t *testing.T) {
	state := hostState()
	for i := 0; i < 20; i++ {
		role := models.RoleUserMessage
		if i%2 == 1 {
			role = models.RoleModelMessage
		}
		state.Messages = append(state.Messages, models.ChatMessage{Role: role, Content: fmt.Sprintf("m%d", i)})
	}

	msgs := BuildNarrationMessages(state, "next", 12)

	require.Len(t, msgs, 14)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, HostSystemPrompt, msgs[0].Content)
	assert.Equal(t, "m8", msgs[1].Content)
	assert.Equal(t, RoleUser, msgs[1].Role)
	assert.Equal(t, RoleAssistant, msgs[12].Role)
	assert.Equal(t, "m19", msgs[12].Content)
	assert.Equal(t, RoleUser, msgs[13].Role)
	assert.Contains(t, msgs[13].Content, `USER INPUT: "next"`)
}

func TestBuildNarrationMessages_ShortTranscript(t *testing.T) {
	state := hostState()
	state.Messages = []models.ChatMessage{{Role: models.RoleModelMessage, Content: "Welcome!"}}

	msgs := BuildNarrationMessages(state, ContinueInput, 0)
	require.Len(t, msgs, 3)
	assert.Equal(t, "Welcome!", msgs[1].Content)
}

func TestBuildContextPrompt(t *testing.T) {
	state := hostState()
	state.Theme = "Space Station"
	state.Restrictions = "No gore."
	state.Mode = models.ModeParticipate
	state.Characters = append(state.Characters, models.Character{Name: "Bob", UltimateTitle: "Ultimate Baker", Status: models.StatusDead})

	got := BuildContextPrompt(state, "look")

	assert.Contains(t, got, "CURRENT CONTEXT:")
	assert.Contains(t, got, "Phase: DAILY_LIFE")
	assert.Contains(t, got, "Host: Monokuma")
	assert.Contains(t, got, "Setting: Space Station")
	assert.Contains(t, got, "Content restrictions: No gore.")
	assert.Contains(t, got, "participates")
	assert.Contains(t, got, "- Ann (TBD): [ALIVE]")
	assert.Contains(t, got, "- Bob (Ultimate Baker): [DEAD]")
	assert.Contains(t, got, UpdateOpenMarker)
}

func TestBuildRoleplayMessages(t *testing.T) {
	c := models.Character{Name: "Kyoko", UltimateTitle: "Ultimate Detective", Origin: "Original", Traits: []string{"calm", "sharp"}, Backstory: "Searches for her past."}
	history := []models.ChatMessage{
		{Role: models.RoleModelMessage, Content: "Hey!"},
		{Role: models.RoleUserMessage, Content: "Hi."},
	}

	msgs := BuildRoleplayMessages(c, history, "Who did it?")
	require.Len(t, msgs, 4)
	assert.Contains(t, msgs[0].Content, "Traits: calm, sharp")
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, RoleUser, msgs[2].Role)
	assert.Equal(t, Message{Role: RoleUser, Content: "Who did it?"}, msgs[3])
}

func TestInitialInput(t *testing.T) {
	assert.Equal(t, "Initialize the game for the cycle: Killing Game #1234. Reveal the full cast and assign Titles.", InitialInput("Killing Game #1234"))
}
