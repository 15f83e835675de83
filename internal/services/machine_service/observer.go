package machine_service

import (
	"time"

	"github.com/iwtcode/cncService/internal/controller"
	"github.com/iwtcode/cncService/internal/domain/models"
	apperrors "github.com/iwtcode/cncService/pkg/errors"
)

var _ controller.Observer = (*JobRunner)(nil)

// SessionStateChanged публикует смену рабочего состояния подключения.
func (r *JobRunner) SessionStateChanged(connectionID string, state models.WorkflowState, err error) {
	r.mu.Lock()
	prev := r.states[connectionID]
	r.states[connectionID] = state
	r.mu.Unlock()

	r.metrics.ConnectionStateChanged(string(prev), string(state))
	r.bus.Publish(models.Event{
		Topic:        models.MachineTopic(connectionID),
		Type:         models.EventConnectionStateChanged,
		ConnectionID: connectionID,
		State:        string(state),
		Error:        detailOf(err),
	})
}

// StreamProgress продвигает курсор задания по подтверждению контроллера.
func (r *JobRunner) StreamProgress(connectionID, jobID string, cursor, total int) {
	r.mu.Lock()
	e, ok := r.jobs[jobID]
	if ok && !e.job.Status.IsTerminal() {
		e.job.Cursor = cursor
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.metrics.LineAcked()
	r.bus.Publish(models.Event{
		Topic:        models.MachineTopic(connectionID),
		Type:         models.EventJobProgress,
		ConnectionID: connectionID,
		JobID:        jobID,
		Cursor:       cursor,
		Total:        total,
	})
}

// StreamStatusChanged переносит статус задания из сессии в таблицу.
// Терминальное задание больше не меняется.
func (r *JobRunner) StreamStatusChanged(connectionID, jobID string, status models.JobStatus, cursor int, err error) {
	now := time.Now()

	r.mu.Lock()
	e, ok := r.jobs[jobID]
	if !ok || e.job.Status.IsTerminal() {
		r.mu.Unlock()
		if ok {
			r.logger.Warn("Status change for finished job ignored", "job_id", jobID, "status", status)
		}
		return
	}
	e.job.Status = status
	e.job.Cursor = cursor
	e.job.Error = detailOf(err)
	if status == models.JobRunning && e.job.StartedAt == nil {
		e.job.StartedAt = &now
	}
	if status.IsTerminal() {
		e.job.FinishedAt = &now
	}
	job := e.job
	r.mu.Unlock()

	if status.IsTerminal() {
		r.finished(job)
		return
	}
	r.persist(job)
	r.publishStatus(job)
}

func detailOf(err error) *apperrors.Detail {
	if err == nil {
		return nil
	}
	d := apperrors.DetailOf(err)
	return &d
}
