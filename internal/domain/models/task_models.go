package models

import (
	"encoding/json"
	"time"

	"github.com/iwtcode/cncService/pkg/errors"
)

// TaskStatus - статус фоновой задачи.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "Queued"
	TaskRunning   TaskStatus = "Running"
	TaskSucceeded TaskStatus = "Succeeded"
	TaskFailed    TaskStatus = "Failed"
	TaskCancelled TaskStatus = "Cancelled"
)

func (s TaskStatus) IsTerminal() bool {
	return s == TaskSucceeded || s == TaskFailed || s == TaskCancelled
}

// TaskSpec - описание задачи на постановку в очередь.
type TaskSpec struct {
	Type    string          `json:"type" binding:"required"`
	Payload json.RawMessage `json:"payload"`
}

// Task - снимок фоновой задачи.
type Task struct {
	ID         string          `json:"task_id"`
	Type       string          `json:"type"`
	Status     TaskStatus      `json:"status"`
	Progress   int             `json:"progress"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *errors.Detail  `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}
