package controller

import "github.com/iwtcode/cncService/internal/domain/models"

// Observer получает уведомления сессии. Все вызовы выполняются из одной
// горутины цикла сессии строго в порядке событий, поэтому реализация не
// должна блокироваться и не должна синхронно вызывать методы сессии,
// ожидающие цикл.
type Observer interface {
	SessionStateChanged(connectionID string, state models.WorkflowState, err error)
	StreamProgress(connectionID, streamID string, cursor, total int)
	StreamStatusChanged(connectionID, streamID string, status models.JobStatus, cursor int, err error)
}

// NopObserver игнорирует все уведомления.
type NopObserver struct{}

func (NopObserver) SessionStateChanged(string, models.WorkflowState, error)           {}
func (NopObserver) StreamProgress(string, string, int, int)                           {}
func (NopObserver) StreamStatusChanged(string, string, models.JobStatus, int, error) {}
