package entities

import "time"

// TaskRecord - запись аудита фоновой задачи.
type TaskRecord struct {
	TaskID       string     `gorm:"primaryKey;not null" json:"task_id"`
	Type         string     `gorm:"index;not null" json:"type"`
	Status       string     `gorm:"index;not null" json:"status"`
	Progress     int        `json:"progress"`
	ResultDigest string     `json:"result_digest,omitempty"` // ключ результата в хранилище
	ErrorKind    string     `json:"error_kind,omitempty"`
	ErrorCode    string     `json:"error_code,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// UnfinishedTaskStatuses - статусы задач, прерванных перезапуском процесса.
var UnfinishedTaskStatuses = []string{"Queued", "Running"}
