package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrTooManyTasks - достигнут лимит активных задач; вызывающий повторит позже.
var ErrTooManyTasks = errors.New("превышено максимальное количество активных задач")

// ErrClosed - менеджер закрыт и не принимает задачи.
var ErrClosed = errors.New("менеджер задач закрыт")

// TaskStatus представляет статус задачи
type TaskStatus string

// Возможные статусы задач
const (
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Task представляет асинхронную задачу
type Task struct {
	ID        uuid.UUID
	Name      string
	Status    TaskStatus
	Result    interface{}
	Err       error
	CreatedAt time.Time
	UpdatedAt time.Time
	cancel    context.CancelFunc
}

// TaskFunc представляет функцию, выполняемую в задаче
type TaskFunc func(ctx context.Context) (interface{}, error)

// TaskCallback вызывается один раз, когда задача перешла в конечный статус.
type TaskCallback func(task Task)

// Config содержит конфигурацию для TaskManager
type Config struct {
	MaxTasks  int           // 1 = строго последовательное выполнение
	RetainFor time.Duration // Сколько хранить завершенные задачи для Get
}

// TaskManager запускает фоновые задачи с ограничением параллелизма.
// Лишние задачи не ставятся в очередь: Submit сразу возвращает ErrTooManyTasks.
type TaskManager struct {
	mu        sync.Mutex
	tasks     map[uuid.UUID]*Task
	maxTasks  int
	retainFor time.Duration
	active    int
	closed    bool
	wg        sync.WaitGroup
}

// New создает новый экземпляр TaskManager
func New(cfg Config) *TaskManager {
	if cfg.MaxTasks <= 0 {
		cfg.MaxTasks = 1
	}
	if cfg.RetainFor <= 0 {
		cfg.RetainFor = 10 * time.Minute
	}
	return &TaskManager{
		tasks:     make(map[uuid.UUID]*Task),
		maxTasks:  cfg.MaxTasks,
		retainFor: cfg.RetainFor,
	}
}

// Submit запускает задачу в отдельной горутине. Контекст задачи независим от
// ctx (переживает HTTP-запрос), но наследует из него zerolog-логгер.
func (tm *TaskManager) Submit(ctx context.Context, name string, fn TaskFunc, onDone TaskCallback) (uuid.UUID, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.closed {
		return uuid.Nil, ErrClosed
	}
	if tm.active >= tm.maxTasks {
		return uuid.Nil, ErrTooManyTasks
	}
	tm.cleanupLocked(time.Now())

	baseCtx, cancel := context.WithCancel(context.Background())
	taskCtx := log.Ctx(ctx).WithContext(baseCtx)

	now := time.Now()
	task := &Task{
		ID:        uuid.New(),
		Name:      name,
		Status:    TaskStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
		cancel:    cancel,
	}
	tm.tasks[task.ID] = task
	tm.active++

	tm.wg.Add(1)
	go func() {
		defer tm.wg.Done()
		defer cancel()
		tm.run(taskCtx, task, fn, onDone)
	}()
	return task.ID, nil
}

func (tm *TaskManager) run(ctx context.Context, task *Task, fn TaskFunc, onDone TaskCallback) {
	logger := log.Ctx(ctx).With().Str("taskID", task.ID.String()).Str("task", task.Name).Logger()

	result, err := fn(ctx)

	status := TaskStatusCompleted
	switch {
	case ctx.Err() != nil:
		status = TaskStatusCancelled
		err = ctx.Err()
		logger.Info().Msg("Задача отменена")
	case err != nil:
		status = TaskStatusFailed
		logger.Warn().Err(err).Msg("Задача завершилась с ошибкой")
	default:
		logger.Debug().Msg("Задача успешно выполнена")
	}

	tm.mu.Lock()
	task.Status = status
	task.Result = result
	task.Err = err
	task.UpdatedAt = time.Now()
	tm.active--
	snapshot := *task
	tm.mu.Unlock()

	// Коллбэк вызывается после освобождения слота, чтобы он мог сразу
	// отправить следующую задачу.
	if onDone != nil {
		onDone(snapshot)
	}
}

// Get возвращает копию задачи по ID
func (tm *TaskManager) Get(taskID uuid.UUID) (Task, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	task, ok := tm.tasks[taskID]
	if !ok {
		return Task{}, fmt.Errorf("задача с ID %s не найдена", taskID)
	}
	return *task, nil
}

// Active возвращает число выполняющихся задач.
func (tm *TaskManager) Active() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.active
}

// Cancel отменяет выполнение задачи
func (tm *TaskManager) Cancel(taskID uuid.UUID) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	task, ok := tm.tasks[taskID]
	if !ok {
		return fmt.Errorf("задача с ID %s не найдена", taskID)
	}
	if task.Status != TaskStatusRunning {
		return fmt.Errorf("невозможно отменить задачу в статусе %s", task.Status)
	}
	task.cancel()
	return nil
}

// cleanupLocked удаляет завершенные задачи старше retainFor.
func (tm *TaskManager) cleanupLocked(now time.Time) {
	for id, task := range tm.tasks {
		if task.Status != TaskStatusRunning && now.Sub(task.UpdatedAt) > tm.retainFor {
			delete(tm.tasks, id)
		}
	}
}

// Close отменяет незавершенные задачи и ждет их горутины.
func (tm *TaskManager) Close() {
	tm.mu.Lock()
	if tm.closed {
		tm.mu.Unlock()
		return
	}
	tm.closed = true
	for _, task := range tm.tasks {
		if task.Status == TaskStatusRunning {
			task.cancel()
		}
	}
	tm.mu.Unlock()

	tm.wg.Wait()
}

// Shutdown ожидает завершения всех задач с таймаутом, не отменяя их.
func (tm *TaskManager) Shutdown(ctx context.Context) error {
	tm.mu.Lock()
	tm.closed = true
	tm.mu.Unlock()

	done := make(chan struct{})
	go func() {
		tm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.New("таймаут при ожидании завершения задач")
	}
}
