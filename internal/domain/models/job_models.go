package models

import (
	"time"

	"github.com/iwtcode/cncService/pkg/errors"
)

// JobStatus - статус задания потоковой передачи G-кода.
type JobStatus string

const (
	JobQueued    JobStatus = "Queued"
	JobRunning   JobStatus = "Running"
	JobPaused    JobStatus = "Paused"
	JobCompleted JobStatus = "Completed"
	JobCancelled JobStatus = "Cancelled"
	JobFailed    JobStatus = "Failed"
)

// IsTerminal сообщает, что задание больше не изменяется.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobCancelled || s == JobFailed
}

// Job - одно полное исполнение управляющей программы на станке.
type Job struct {
	ID           string         `json:"job_id"`
	ConnectionID string         `json:"connection_id"`
	Lines        []string       `json:"-"`
	Total        int            `json:"total"`
	Cursor       int            `json:"cursor"` // количество подтвержденных строк
	Status       JobStatus      `json:"status"`
	Error        *errors.Detail `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
}

// UploadJobRequest - тело запроса на загрузку задания. Допускается либо
// список строк, либо цельный текст программы.
type UploadJobRequest struct {
	Lines []string `json:"lines"`
	GCode string   `json:"gcode"`
}
