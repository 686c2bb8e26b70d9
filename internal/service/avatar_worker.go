package service

import (
	"context"
	"errors"

	"ronpa-server/pkg/taskmanager"
	"ronpa-server/shared/interfaces"
	"ronpa-server/shared/models"

	"go.uber.org/zap"
)

// avatarTarget - сторона, владеющая живым кастом (GameLoop).
type avatarTarget interface {
	// avatarCandidate returns the first live character that has an ultimate
	// title but no avatar yet.
	avatarCandidate() (models.Character, bool)
	// applyAvatar stores the reference on the live character and in the archive.
	applyAvatar(ctx context.Context, characterID, ref string) error
}

// AvatarWorker генерирует аватары в фоне строго по одному.
// Неудачи проглатываются: персонаж остается кандидатом и будет подхвачен
// следующим Kick после очередного хода.
type AvatarWorker struct {
	gen    interfaces.AvatarGenerator
	tasks  *taskmanager.TaskManager
	target avatarTarget
	logger *zap.Logger
}

func NewAvatarWorker(gen interfaces.AvatarGenerator, target avatarTarget, logger *zap.Logger) *AvatarWorker {
	return &AvatarWorker{
		gen:    gen,
		tasks:  taskmanager.New(taskmanager.Config{MaxTasks: 1}),
		target: target,
		logger: logger.Named("AvatarWorker"),
	}
}

// Kick starts a generation for the next candidate unless one is already
// running. Never blocks.
func (w *AvatarWorker) Kick(ctx context.Context) {
	if w == nil || w.gen == nil {
		return
	}
	candidate, ok := w.target.avatarCandidate()
	if !ok {
		return
	}
	log := w.logger.With(zap.String("characterID", candidate.ID), zap.String("name", candidate.Name))

	_, err := w.tasks.Submit(ctx, "avatar:"+candidate.ID, func(taskCtx context.Context) (interface{}, error) {
		ref, err := w.gen.GenerateAvatar(taskCtx, candidate)
		if err != nil || ref == "" {
			return "", err
		}
		// Применяем внутри задачи, пока слот занят: иначе параллельный Kick
		// успеет выбрать этого же персонажа повторно.
		if err := w.target.applyAvatar(taskCtx, candidate.ID, ref); err != nil {
			return "", err
		}
		return ref, nil
	}, func(task taskmanager.Task) {
		if task.Status != taskmanager.TaskStatusCompleted {
			if task.Err != nil && !errors.Is(task.Err, context.Canceled) {
				log.Warn("Avatar generation failed, will retry on the next pass", zap.Error(task.Err))
			}
			return
		}
		if ref, _ := task.Result.(string); ref != "" {
			log.Debug("Avatar applied", zap.String("ref", ref))
			w.Kick(ctx)
		}
	})
	switch {
	case err == nil:
	case errors.Is(err, taskmanager.ErrTooManyTasks), errors.Is(err, taskmanager.ErrClosed):
		// Уже занят или остановлен.
	default:
		log.Warn("Failed to submit avatar task", zap.Error(err))
	}
}

// Busy reports whether a generation is in progress.
func (w *AvatarWorker) Busy() bool {
	return w != nil && w.tasks.Active() > 0
}

// Close cancels the running generation and waits for it.
func (w *AvatarWorker) Close() {
	if w == nil {
		return
	}
	w.tasks.Close()
}
