// Package speech озвучивает реплики ведущего внешней TTS-командой
// (espeak, say, piper и т.п.). Ошибки не возвращаются, только логируются.
package speech

import (
	"context"
	"os/exec"
	"sync"
	"sync/atomic"

	"ronpa-server/shared/interfaces"

	"go.uber.org/zap"
)

// MaxChars - длина озвучиваемого фрагмента в символах.
const MaxChars = 400

// Config - параметры озвучки.
type Config struct {
	Command string   // Пусто = озвучка недоступна, Speak ничего не делает
	Args    []string // Текст передается последним аргументом
	Muted   bool
}

// CommandSpeaker runs one utterance at a time; a new Speak cancels the
// previous one.
type CommandSpeaker struct {
	cfg    Config
	muted  atomic.Bool
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc

	run func(ctx context.Context, name string, args ...string) error
}

var _ interfaces.Speaker = (*CommandSpeaker)(nil)

func New(cfg Config, logger *zap.Logger) *CommandSpeaker {
	s := &CommandSpeaker{
		cfg:    cfg,
		logger: logger.Named("Speech"),
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
	s.muted.Store(cfg.Muted)
	return s
}

// Truncate cuts text to MaxChars runes.
func Truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxChars {
		return text
	}
	return string(runes[:MaxChars])
}

// Speak starts reading text aloud and returns immediately.
func (s *CommandSpeaker) Speak(text string) {
	if s.cfg.Command == "" || s.muted.Load() || text == "" {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	args := append(append([]string(nil), s.cfg.Args...), Truncate(text))
	go func() {
		defer cancel()
		if err := s.run(ctx, s.cfg.Command, args...); err != nil && ctx.Err() == nil {
			s.logger.Debug("TTS command failed", zap.String("command", s.cfg.Command), zap.Error(err))
		}
	}()
}

// SetMuted toggles speech; muting also stops the current utterance.
func (s *CommandSpeaker) SetMuted(muted bool) {
	s.muted.Store(muted)
	if muted {
		s.Stop()
	}
}

// Muted reports the mute state.
func (s *CommandSpeaker) Muted() bool {
	return s.muted.Load()
}

// Stop cancels the current utterance, if any.
func (s *CommandSpeaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
