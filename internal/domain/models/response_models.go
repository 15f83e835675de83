package models

import "github.com/iwtcode/cncService/pkg/errors"

// ErrorResponse представляет стандартный ответ с ошибкой.
type ErrorResponse struct {
	Status string `json:"status" example:"error"`
	Error  struct {
		Code    int            `json:"code" example:"409"`
		Message string         `json:"message" example:"invalid_state"`
		Detail  *errors.Detail `json:"detail,omitempty"`
	} `json:"error"`
}

// MessageResponse представляет стандартный успешный ответ с сообщением.
type MessageResponse struct {
	Status  string `json:"status" example:"ok"`
	Message string `json:"message" example:"Job started"`
}

// ConnectionResponse представляет ответ с информацией о подключении.
type ConnectionResponse struct {
	Status         string          `json:"status" example:"ok"`
	ConnectionInfo *ConnectionInfo `json:"connection_info"`
}

// GetConnectionsResponse представляет ответ со списком всех подключений.
type GetConnectionsResponse struct {
	Status      string            `json:"status" example:"ok"`
	PoolSize    int               `json:"pool_size" example:"2"`
	Connections []*ConnectionInfo `json:"connections"`
}

// PortsResponse представляет список последовательных портов.
type PortsResponse struct {
	Status string     `json:"status" example:"ok"`
	Ports  []PortInfo `json:"ports"`
}

// CommandResponse представляет ответ контроллера на команду.
type CommandResponse struct {
	Status string        `json:"status" example:"ok"`
	Reply  *CommandReply `json:"reply"`
}

// JobResponse представляет снимок задания.
type JobResponse struct {
	Status string `json:"status" example:"ok"`
	Job    *Job   `json:"job"`
}

// JobsResponse представляет список заданий подключения.
type JobsResponse struct {
	Status string `json:"status" example:"ok"`
	Jobs   []*Job `json:"jobs"`
}

// TaskResponse представляет снимок фоновой задачи.
type TaskResponse struct {
	Status string `json:"status" example:"ok"`
	Task   *Task  `json:"task"`
}

// TasksResponse представляет список фоновых задач.
type TasksResponse struct {
	Status string  `json:"status" example:"ok"`
	Tasks  []*Task `json:"tasks"`
}
