package service

import (
	"context"
	"fmt"
	"strings"

	"ronpa-server/shared/interfaces"
	"ronpa-server/shared/models"

	"go.uber.org/zap"
)

// SandboxService - свободный разговор с персонажем из архива.
// История хранится у вызывающего и передается целиком в каждом запросе.
type SandboxService struct {
	host    interfaces.RoleplayHost
	archive archiveReader
	logger  *zap.Logger
}

func NewSandboxService(host interfaces.RoleplayHost, archive archiveReader, logger *zap.Logger) *SandboxService {
	return &SandboxService{
		host:    host,
		archive: archive,
		logger:  logger.Named("SandboxService"),
	}
}

// Greeting is the opening line of a fresh sandbox conversation.
func Greeting(c models.Character) models.ChatMessage {
	return models.ChatMessage{
		Role:    models.RoleModelMessage,
		Content: fmt.Sprintf("Hey! I'm %s, the %s. What's up?", c.Name, c.UltimateTitle),
	}
}

// Open returns the archived character and the greeting that starts the chat.
func (s *SandboxService) Open(characterID string) (models.Character, []models.ChatMessage, error) {
	c, ok := s.archive.Get(characterID)
	if !ok {
		return models.Character{}, nil, fmt.Errorf("%w: %s", models.ErrCharacterNotFound, characterID)
	}
	return c, []models.ChatMessage{Greeting(c)}, nil
}

// Chat sends input to the character and returns the history extended by the
// player's line and the reply. history is the conversation before input.
func (s *SandboxService) Chat(ctx context.Context, characterID string, history []models.ChatMessage, input string) ([]models.ChatMessage, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("%w: empty input", models.ErrInvalidInput)
	}
	c, ok := s.archive.Get(characterID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrCharacterNotFound, characterID)
	}

	reply, err := s.host.Roleplay(ctx, c, history, input)
	if err != nil {
		s.logger.Warn("Sandbox reply failed", zap.String("characterID", characterID), zap.Error(err))
		return nil, fmt.Errorf("sandbox reply: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		reply = "..."
	}

	out := make([]models.ChatMessage, 0, len(history)+2)
	out = append(out, history...)
	out = append(out,
		models.ChatMessage{Role: models.RoleUserMessage, Content: input},
		models.ChatMessage{Role: models.RoleModelMessage, Content: reply},
	)
	return out, nil
}
