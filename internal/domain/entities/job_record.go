package entities

import "time"

// JobRecord - запись аудита задания.
type JobRecord struct {
	JobID        string     `gorm:"primaryKey;not null" json:"job_id"`
	ConnectionID string     `gorm:"index;not null" json:"connection_id"`
	Total        int        `json:"total"`
	Cursor       int        `json:"cursor"`
	Status       string     `gorm:"index;not null" json:"status"`
	ErrorKind    string     `json:"error_kind,omitempty"`
	ErrorCode    string     `json:"error_code,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// UnfinishedJobStatuses - статусы заданий, прерванных перезапуском процесса.
var UnfinishedJobStatuses = []string{"Queued", "Running", "Paused"}
