package ai

import (
	"context"
	"errors"
	"fmt"

	"ronpa-server/shared/interfaces"
	"ronpa-server/shared/models"

	"go.uber.org/zap"
)

// HostConfig - параметры генерации ведущего и песочницы.
type HostConfig struct {
	ContextWindow     int
	Narration         GenerationParams
	NarrationFallback GenerationParams
	Roleplay          GenerationParams
	RoleplayFallback  GenerationParams
}

// DefaultHostConfig returns the tuned defaults for the OpenRouter models.
func DefaultHostConfig() HostConfig {
	return HostConfig{
		ContextWindow:     DefaultContextWindow,
		Narration:         Params(0.85, 2048),
		NarrationFallback: Params(0.8, 1500),
		Roleplay:          Params(0.92, 512),
		RoleplayFallback:  Params(0.9, 512),
	}
}

// Host - ведущий игры: основная модель в режиме стрима и запасная без стрима.
type Host struct {
	primary  TextGenerator
	fallback TextGenerator
	cfg      HostConfig
	logger   *zap.Logger
}

var (
	_ interfaces.NarrationHost = (*Host)(nil)
	_ interfaces.RoleplayHost  = (*Host)(nil)
)

// NewHost creates the narrator. fallback may be nil, then primary failures
// surface as ErrTransportFailure directly.
func NewHost(primary, fallback TextGenerator, cfg HostConfig, logger *zap.Logger) *Host {
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = DefaultContextWindow
	}
	return &Host{
		primary:  primary,
		fallback: fallback,
		cfg:      cfg,
		logger:   logger.Named("Host"),
	}
}

// StreamNarration streams the primary model. If it fails, the request is
// retried exactly once on the fallback model without streaming and its full
// reply is delivered to onChunk as a single fragment.
func (h *Host) StreamNarration(ctx context.Context, state *models.GameState, userInput string, onChunk func(string)) (string, error) {
	messages := BuildNarrationMessages(state, userInput, h.cfg.ContextWindow)
	log := h.logger.With(zap.String("gameID", state.ID), zap.String("phase", string(state.Phase)))

	var full []byte
	_, err := h.primary.GenerateTextStream(ctx, messages, h.cfg.Narration, func(chunk string) error {
		full = append(full, chunk...)
		if onChunk != nil {
			onChunk(chunk)
		}
		return nil
	})
	if err == nil {
		return string(full), nil
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("%w: %v", models.ErrTransportFailure, ctx.Err())
	}
	if h.fallback == nil {
		return "", fmt.Errorf("%w: %v", models.ErrTransportFailure, err)
	}

	log.Warn("Primary narration stream failed, retrying on fallback model",
		zap.String("primary", h.primary.Model()),
		zap.String("fallback", h.fallback.Model()),
		zap.Int("receivedBytes", len(full)),
		zap.Error(err),
	)
	aiFallbacksTotal.WithLabelValues("narration").Inc()

	text, _, fbErr := h.fallback.GenerateText(ctx, messages, h.cfg.NarrationFallback)
	if fbErr != nil {
		log.Error("Fallback narration failed", zap.Error(fbErr))
		return "", fmt.Errorf("%w: %v", models.ErrTransportFailure, errors.Join(err, fbErr))
	}
	if onChunk != nil {
		onChunk(text)
	}
	return text, nil
}

// Roleplay answers as a single character in the sandbox, with the same
// primary/fallback policy but without streaming.
func (h *Host) Roleplay(ctx context.Context, character models.Character, history []models.ChatMessage, userInput string) (string, error) {
	messages := BuildRoleplayMessages(character, history, userInput)

	text, _, err := h.primary.GenerateText(ctx, messages, h.cfg.Roleplay)
	if err == nil {
		return text, nil
	}
	if h.fallback == nil || ctx.Err() != nil {
		return "", fmt.Errorf("%w: %v", models.ErrTransportFailure, err)
	}

	h.logger.Warn("Primary roleplay request failed, retrying on fallback model",
		zap.String("characterID", character.ID), zap.Error(err))
	aiFallbacksTotal.WithLabelValues("roleplay").Inc()

	text, _, fbErr := h.fallback.GenerateText(ctx, messages, h.cfg.RoleplayFallback)
	if fbErr != nil {
		return "", fmt.Errorf("%w: %v", models.ErrTransportFailure, errors.Join(err, fbErr))
	}
	return text, nil
}
