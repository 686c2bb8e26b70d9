package interfaces

import (
	"context"

	"ronpa-server/shared/models"
)

// NarrationHost streams the host's narration for one turn.
// onChunk receives every incremental fragment. On the primary path the returned
// text equals the concatenation of fragments; when the fallback model is used
// its whole reply is delivered as one synthetic fragment.
type NarrationHost interface {
	StreamNarration(ctx context.Context, state *models.GameState, userInput string, onChunk func(fragment string)) (string, error)
}

// RoleplayHost answers as a single archived character (sandbox mode).
type RoleplayHost interface {
	Roleplay(ctx context.Context, character models.Character, history []models.ChatMessage, userInput string) (string, error)
}

// AvatarGenerator produces an image reference for a character.
// An empty reference with a nil error means "not now, retry on the next pass".
type AvatarGenerator interface {
	GenerateAvatar(ctx context.Context, character models.Character) (string, error)
}

// Speaker reads narration aloud. Fire and forget.
type Speaker interface {
	Speak(text string)
	SetMuted(muted bool)
}

// DisplaySink - живое представление игры (websocket, терминал).
type DisplaySink interface {
	// StreamUpdated carries the visible part of the narration streamed so far.
	StreamUpdated(gameID string, visible string)
	// StreamCleared is sent when a turn ends, successfully or not.
	StreamCleared(gameID string)
	// StateChanged carries a snapshot after every committed mutation.
	StateChanged(state *models.GameState)
}
