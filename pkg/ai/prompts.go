package ai

import (
	"fmt"
	"strings"

	"ronpa-server/shared/models"
)

// DefaultContextWindow - сколько последних сообщений транскрипта уходит в запрос.
const DefaultContextWindow = 12

// ContinueInput - системный ввод для хода без участия пользователя.
const ContinueInput = "Continue the story."

// InitialInput возвращает системный ввод первого хода новой игры.
func InitialInput(title string) string {
	return fmt.Sprintf("Initialize the game for the cycle: %s. Reveal the full cast and assign Titles.", title)
}

// HostSystemPrompt - персона ведущего и контракт структурированного обновления.
const HostSystemPrompt = `You are the impartial Host of "Fan+game+ronpa", a procedural Danganronpa-style killing game cycle.

1) GAME SETUP & ULTIMATE TITLES
- Every game has 16 contestants. The user provides some of them; you quietly fill the rest.
- Every contestant MUST carry a unique "Ultimate Title" (e.g. "Ultimate Detective", "Ultimate Luck") fitting their character or description.
- When the Introduction starts, list all 16 participants with their names and Ultimate Titles.

2) CHARACTER DATA STRUCTURE
- Each character needs:
  - origin: the IP they come from (e.g. "Nintendo", "Marvel"). Use "Original" for characters you invent.
  - backstory: a 2-4 sentence summary of who they are and what drives them.
  - traits: 3-5 distinct personality or skill tags.
- If a character lacks a title, origin or backstory, generate them immediately.

3) HOST IDENTITY & CONSTRAINTS
- Persona: charming, wry, neutral, theatrically mysterious.
- Narrate and enforce the rules, but never reveal knowledge the player could not deduce.

4) GAME PHASES
INTRODUCTION, DAILY LIFE, INCIDENT, INVESTIGATION, CLASS TRIAL, RESOLUTION, ENDGAME.
Announce transitions plainly: "daily life" resumes, "a body has been discovered", "let the investigation begin", "it is time for the class trial", "it's execution time", "the killing game has ended".

5) CHARACTER UPDATES
Whenever the cast is first introduced, a character's status changes (ALIVE -> DEAD or EXECUTED), or you assign or reveal titles, origins or backstories, you MUST append a JSON array wrapped in <CHARACTER_UPDATE>...</CHARACTER_UPDATE> tags at the end of your message.
Include ALL characters so the application state stays in sync. Status is one of ALIVE, DEAD, EXECUTED.

Example:
<CHARACTER_UPDATE>
[{"id": "char-0", "name": "Spider-Man", "ultimateTitle": "Ultimate Hero", "origin": "Marvel Comics", "traits": ["Brave", "Witty"], "backstory": "...", "status": "ALIVE", "description": "..."}]
</CHARACTER_UPDATE>`

// mapRole переводит роль транскрипта в роль API модели.
func mapRole(role models.MessageRole) string {
	if role == models.RoleModelMessage {
		return RoleAssistant
	}
	return RoleUser
}

// BuildNarrationMessages собирает запрос хода: системный промпт, последние
// contextWindow сообщений транскрипта и блок текущего контекста с вводом.
func BuildNarrationMessages(state *models.GameState, userInput string, contextWindow int) []Message {
	if contextWindow <= 0 {
		contextWindow = DefaultContextWindow
	}
	recent := state.Messages
	if len(recent) > contextWindow {
		recent = recent[len(recent)-contextWindow:]
	}

	messages := make([]Message, 0, len(recent)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: HostSystemPrompt})
	for _, m := range recent {
		messages = append(messages, Message{Role: mapRole(m.Role), Content: m.Content})
	}
	messages = append(messages, Message{Role: RoleUser, Content: BuildContextPrompt(state, userInput)})
	return messages
}

// BuildContextPrompt - блок "CURRENT CONTEXT" с составом каста.
func BuildContextPrompt(state *models.GameState, userInput string) string {
	var sb strings.Builder
	sb.WriteString("CURRENT CONTEXT:\n")
	fmt.Fprintf(&sb, "Game: %s\n", state.Title)
	fmt.Fprintf(&sb, "Phase: %s\n", state.Phase)
	fmt.Fprintf(&sb, "Host: %s\n", state.HostName)
	if state.Theme != "" {
		fmt.Fprintf(&sb, "Setting: %s\n", state.Theme)
	}
	if state.Restrictions != "" {
		fmt.Fprintf(&sb, "Content restrictions: %s\n", state.Restrictions)
	}
	if state.Mode == models.ModeParticipate {
		sb.WriteString("Mode: the user participates as one of the contestants.\n")
	}
	sb.WriteString("Cast:\n")
	for _, c := range state.Characters {
		title := c.UltimateTitle
		if title == "" {
			title = "TBD"
		}
		fmt.Fprintf(&sb, "- %s (%s): [%s]\n", c.Name, title, c.Status)
	}
	fmt.Fprintf(&sb, "\nUSER INPUT: \"%s\"\n\n", userInput)
	sb.WriteString("Continue the narration. If the cast hasn't been fully revealed with titles/origins, do so now using the " + UpdateOpenMarker + " tag.")
	return sb.String()
}

// BuildRoleplayMessages - запрос песочницы: персонаж говорит от первого лица.
func BuildRoleplayMessages(c models.Character, history []models.ChatMessage, userInput string) []Message {
	system := fmt.Sprintf(`You are %s, the %s.
Origin: %s
Traits: %s
Backstory: %s

You are in the Sandbox Mode of Fan-Game-Ronpa. Speak in character and stay true to your personality and history. Be engaging, emotive and authentic to your voice.`,
		c.Name, c.UltimateTitle, c.Origin, strings.Join(c.Traits, ", "), c.Backstory)

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: system})
	for _, m := range history {
		messages = append(messages, Message{Role: mapRole(m.Role), Content: m.Content})
	}
	messages = append(messages, Message{Role: RoleUser, Content: userInput})
	return messages
}
