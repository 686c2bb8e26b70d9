package speech

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recorder подменяет запуск внешней команды.
type recorder struct {
	mu    sync.Mutex
	calls [][]string
	block bool
	ctxs  []context.Context
}

func (r *recorder) run(ctx context.Context, name string, args ...string) error {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string{name}, args...))
	r.ctxs = append(r.ctxs, ctx)
	block := r.block
	r.mu.Unlock()
	if block {
		<-ctx.Done()
	}
	return nil
}

func (r *recorder) snapshot() ([][]string, []context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...), append([]context.Context(nil), r.ctxs...)
}

func newTestSpeaker(cfg Config, rec *recorder) *CommandSpeaker {
	s := New(cfg, zap.NewNop())
	s.run = rec.run
	return s
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short"))

	long := strings.Repeat("я", MaxChars+10)
	got := Truncate(long)
	assert.Equal(t, MaxChars, len([]rune(got)))
	assert.True(t, strings.HasPrefix(long, got))
}

func TestSpeaker_SpeakRunsCommand(t *testing.T) {
	rec := &recorder{}
	s := newTestSpeaker(Config{Command: "espeak", Args: []string{"-s", "160"}}, rec)

	s.Speak("Upupupu!")

	require.Eventually(t, func() bool {
		calls, _ := rec.snapshot()
		return len(calls) == 1
	}, time.Second, 5*time.Millisecond)
	calls, _ := rec.snapshot()
	assert.Equal(t, []string{"espeak", "-s", "160", "Upupupu!"}, calls[0])
}

func TestSpeaker_SilentCases(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		text string
	}{
		{"no command", Config{}, "hello"},
		{"muted", Config{Command: "say", Muted: true}, "hello"},
		{"empty text", Config{Command: "say"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			s := newTestSpeaker(tt.cfg, rec)
			s.Speak(tt.text)
			time.Sleep(20 * time.Millisecond)
			calls, _ := rec.snapshot()
			assert.Empty(t, calls)
		})
	}
}

func TestSpeaker_NewUtteranceCancelsPrevious(t *testing.T) {
	rec := &recorder{block: true}
	s := newTestSpeaker(Config{Command: "say"}, rec)
	defer s.Stop()

	s.Speak("first")
	require.Eventually(t, func() bool {
		calls, _ := rec.snapshot()
		return len(calls) == 1
	}, time.Second, 5*time.Millisecond)

	s.Speak("second")
	require.Eventually(t, func() bool {
		_, ctxs := rec.snapshot()
		return len(ctxs) == 2 && ctxs[0].Err() != nil
	}, time.Second, 5*time.Millisecond)
}

func TestSpeaker_MuteStopsCurrent(t *testing.T) {
	rec := &recorder{block: true}
	s := newTestSpeaker(Config{Command: "say"}, rec)

	s.Speak("talking")
	require.Eventually(t, func() bool {
		_, ctxs := rec.snapshot()
		return len(ctxs) == 1
	}, time.Second, 5*time.Millisecond)

	s.SetMuted(true)
	assert.True(t, s.Muted())
	_, ctxs := rec.snapshot()
	require.Eventually(t, func() bool { return ctxs[0].Err() != nil }, time.Second, 5*time.Millisecond)

	s.Speak("ignored")
	time.Sleep(20 * time.Millisecond)
	calls, _ := rec.snapshot()
	assert.Len(t, calls, 1)

	s.SetMuted(false)
	assert.False(t, s.Muted())
}
