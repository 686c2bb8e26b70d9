package service

import (
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"ronpa-server/shared/models"

	"go.uber.org/zap"
)

// decisionRe ловит реплики ведущего, требующие выбора от игрока.
var decisionRe = regexp.MustCompile(`(?i)\b(choose|select|decide|what do you|which one|pick|your choice)\b`)

// NeedsDecision reports whether narration hands the turn back to the player:
// it ends with a question mark or contains one of the decision phrases.
func NeedsDecision(text string) bool {
	trimmed := strings.TrimSpace(text)
	return strings.HasSuffix(trimmed, "?") || decisionRe.MatchString(trimmed)
}

// Timer - отменяемый отложенный вызов.
type Timer interface {
	Stop() bool
}

// Scheduler откладывает вызов f на d. Подменяется в тестах.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// AutoPlayConfig - параметры авто-режима.
type AutoPlayConfig struct {
	MaxTurns  int           // Подряд идущих автоматических ходов до самоотключения
	BaseDelay time.Duration // Пауза перед автоматическим ходом
	Jitter    time.Duration // Случайная добавка к паузе, [0, Jitter)
}

// DefaultAutoPlayConfig returns 5 turns with a 2-2.5s delay.
func DefaultAutoPlayConfig() AutoPlayConfig {
	return AutoPlayConfig{
		MaxTurns:  5,
		BaseDelay: 2 * time.Second,
		Jitter:    500 * time.Millisecond,
	}
}

// AutoPlay - ограниченный цикл автоматических "continue".
// Каждый запланированный таймер помечен поколением; Disable увеличивает
// поколение, поэтому уже сработавший, но не успевший взять мьютекс таймер
// ничего не сделает.
type AutoPlay struct {
	mu      sync.Mutex
	cfg     AutoPlayConfig
	sched   Scheduler
	rnd     func() float64
	fire    func()
	logger  *zap.Logger
	enabled bool
	count   int
	timer   Timer
	gen     uint64
}

// NewAutoPlay creates a disabled auto-play handle. fire is invoked from the
// timer goroutine when an automatic turn is due.
func NewAutoPlay(cfg AutoPlayConfig, sched Scheduler, fire func(), logger *zap.Logger) *AutoPlay {
	def := DefaultAutoPlayConfig()
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = def.MaxTurns
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if sched == nil {
		sched = realScheduler{}
	}
	return &AutoPlay{
		cfg:    cfg,
		sched:  sched,
		rnd:    rand.Float64,
		fire:   fire,
		logger: logger.Named("AutoPlay"),
	}
}

// Enable switches auto-play on with a fresh turn budget. The caller is
// expected to call Evaluate afterwards.
func (a *AutoPlay) Enable() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = true
	a.count = 0
}

// Disable switches auto-play off and cancels a pending timer. Idempotent.
func (a *AutoPlay) Disable() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disableLocked()
}

func (a *AutoPlay) disableLocked() {
	a.enabled = false
	a.stopTimerLocked()
}

func (a *AutoPlay) stopTimerLocked() {
	a.gen++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// ResetCount restarts the consecutive-turn budget after a manual turn.
func (a *AutoPlay) ResetCount() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.count = 0
}

// Enabled reports whether auto-play is on.
func (a *AutoPlay) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// Count returns the number of automatic turns fired since the last reset.
func (a *AutoPlay) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Evaluate decides whether to schedule the next automatic turn. It is called
// whenever a turn ends or auto-play is switched on; busy means a turn is
// still streaming. Returns true if a timer was scheduled.
func (a *AutoPlay) Evaluate(last *models.ChatMessage, busy bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.enabled || busy {
		return false
	}
	if a.count >= a.cfg.MaxTurns {
		a.logger.Info("Auto-play turn budget exhausted", zap.Int("turns", a.count))
		a.disableLocked()
		a.count = 0
		return false
	}
	if last != nil && last.Role == models.RoleModelMessage && NeedsDecision(last.Content) {
		a.logger.Info("Auto-play halted: narrator is waiting for a decision")
		a.disableLocked()
		return false
	}

	a.stopTimerLocked()
	gen := a.gen
	delay := a.cfg.BaseDelay
	if a.cfg.Jitter > 0 {
		delay += time.Duration(a.rnd() * float64(a.cfg.Jitter))
	}
	a.timer = a.sched.AfterFunc(delay, func() { a.onTimer(gen) })
	return true
}

func (a *AutoPlay) onTimer(gen uint64) {
	a.mu.Lock()
	if !a.enabled || gen != a.gen {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	a.count++
	a.mu.Unlock()

	a.fire()
}
