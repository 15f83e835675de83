package task_manager

import (
	"context"

	apperrors "github.com/iwtcode/cncService/pkg/errors"
)

// Reporter передается обработчику задачи: прогресс и точки отмены.
type Reporter struct {
	ctx context.Context
	m   *Manager
	e   *taskEntry
}

// Context отменяется при запросе отмены задачи.
func (r *Reporter) Context() context.Context { return r.ctx }

// Report сообщает прогресс в процентах. Значения ограничиваются 0..100,
// уменьшение прогресса игнорируется.
func (r *Reporter) Report(percent int) {
	r.m.progress(r.e, min(max(percent, 0), 100))
}

// Checkpoint возвращает TaskError{Cancelled}, если отмена запрошена.
// Обработчик должен вернуть эту ошибку.
func (r *Reporter) Checkpoint() error {
	if r.ctx.Err() != nil {
		return apperrors.NewTaskError(apperrors.TaskCancelled, r.e.id, "отменена по запросу", nil)
	}
	return nil
}
