package service

import (
	"sync"
	"testing"
	"time"

	"ronpa-server/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// fakeScheduler копит таймеры; тест сам решает, когда они срабатывают.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// take returns the newest pending timer and marks it fired.
func (s *fakeScheduler) take() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.timers) - 1; i >= 0; i-- {
		if t := s.timers[i]; !t.stopped {
			t.stopped = true
			return t
		}
	}
	return nil
}

func (s *fakeScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func narration(text string) *models.ChatMessage {
	return &models.ChatMessage{Role: models.RoleModelMessage, Content: text}
}

func TestAutoPlay_StopsAfterTurnBudget(t *testing.T) {
	sched := &fakeScheduler{}
	fired := 0
	ap := NewAutoPlay(DefaultAutoPlayConfig(), sched, func() { fired++ }, zap.NewNop())
	ap.rnd = func() float64 { return 0.5 }

	ap.Enable()
	last := narration("The students wander the halls.")
	require.True(t, ap.Evaluate(last, false))

	for i := 0; i < 10; i++ {
		timer := sched.take()
		if timer == nil {
			break
		}
		assert.Equal(t, 2250*time.Millisecond, timer.d)
		timer.f()
		ap.Evaluate(last, false)
	}

	assert.Equal(t, 5, fired)
	assert.False(t, ap.Enabled())
	assert.Equal(t, 0, ap.Count())
	assert.Zero(t, sched.pending())
}

func TestAutoPlay_HaltsOnDecision(t *testing.T) {
	sched := &fakeScheduler{}
	fired := 0
	ap := NewAutoPlay(DefaultAutoPlayConfig(), sched, func() { fired++ }, zap.NewNop())

	ap.Enable()
	assert.False(t, ap.Evaluate(narration("Will you search the gym or the library?"), false))
	assert.False(t, ap.Enabled())
	assert.Zero(t, sched.pending())
	assert.Zero(t, fired)
}

func TestAutoPlay_PlayerQuestionDoesNotHalt(t *testing.T) {
	sched := &fakeScheduler{}
	ap := NewAutoPlay(DefaultAutoPlayConfig(), sched, func() {}, zap.NewNop())

	ap.Enable()
	assert.True(t, ap.Evaluate(&models.ChatMessage{Role: models.RoleUserMessage, Content: "Where am I?"}, false))
	assert.True(t, ap.Enabled())
	assert.Equal(t, 1, sched.pending())
}

func TestAutoPlay_DisableCancelsPendingTimer(t *testing.T) {
	sched := &fakeScheduler{}
	fired := 0
	ap := NewAutoPlay(DefaultAutoPlayConfig(), sched, func() { fired++ }, zap.NewNop())

	ap.Enable()
	require.True(t, ap.Evaluate(nil, false))
	timer := sched.timers[0]

	ap.Disable()
	assert.True(t, timer.stopped)

	// Таймер, уже успевший сработать до Disable, ничего не делает.
	timer.f()
	assert.Zero(t, fired)
	assert.Zero(t, ap.Count())
}

func TestAutoPlay_Evaluate(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		busy    bool
		want    bool
	}{
		{"disabled", false, false, false},
		{"busy", true, true, false},
		{"ready", true, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ap := NewAutoPlay(AutoPlayConfig{}, &fakeScheduler{}, func() {}, zap.NewNop())
			if tt.enabled {
				ap.Enable()
			}
			assert.Equal(t, tt.want, ap.Evaluate(narration("Morning announcement."), tt.busy))
		})
	}
}

func TestAutoPlay_RescheduleReplacesTimer(t *testing.T) {
	sched := &fakeScheduler{}
	ap := NewAutoPlay(DefaultAutoPlayConfig(), sched, func() {}, zap.NewNop())
	ap.Enable()

	require.True(t, ap.Evaluate(nil, false))
	require.True(t, ap.Evaluate(nil, false))

	assert.Len(t, sched.timers, 2)
	assert.True(t, sched.timers[0].stopped)
	assert.Equal(t, 1, sched.pending())
}

func TestNeedsDecision(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"What will you do?", true},
		{"What will you do?  \n", true},
		{"Choose wisely, student.", true},
		{"Pick a door.", true},
		{"It is your choice now.", true},
		{"You must decide who to trust.", true},
		{"The night falls quietly.", false},
		{"She picked up the knife.", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NeedsDecision(tt.text), tt.text)
	}
}
