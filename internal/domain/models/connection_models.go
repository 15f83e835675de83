package models

import (
	"time"

	"github.com/iwtcode/cncService/pkg/errors"
)

// TransportKind - тип физического канала до контроллера.
type TransportKind string

const (
	TransportSerial TransportKind = "serial"
	TransportTCP    TransportKind = "tcp"
)

// WorkflowState - рабочее состояние сессии контроллера.
type WorkflowState string

const (
	StateDisconnected WorkflowState = "Disconnected"
	StateConnecting   WorkflowState = "Connecting"
	StateIdle         WorkflowState = "Idle"
	StateRunning      WorkflowState = "Running"
	StatePaused       WorkflowState = "Paused"
	StateStopped      WorkflowState = "Stopped"
	StateError        WorkflowState = "Error"
)

// ConnectionRequest определяет структуру для нового запроса на подключение.
type ConnectionRequest struct {
	Kind     TransportKind `json:"kind"`                            // serial | tcp, по умолчанию serial
	Address  string        `json:"address" binding:"required"`      // "/dev/ttyUSB0" или "192.168.1.10:23"
	BaudRate int           `json:"baud_rate" binding:"gte=0"`       // только для serial
	Dialect  string        `json:"dialect"`                         // grbl | marlin | smoothie
	Window   int           `json:"window" binding:"gte=0,lte=1024"` // 0 - окно по умолчанию для диалекта
}

// CommandRequest - одиночная корректирующая команда для простаивающей сессии.
type CommandRequest struct {
	Line string `json:"line" binding:"required"`
}

// CommandReply - ответ контроллера на одиночную команду.
type CommandReply struct {
	Line  string `json:"line"`
	Reply string `json:"reply"`
	OK    bool   `json:"ok"`
}

// ConnectionInfo представляет активное подключение в реестре.
type ConnectionInfo struct {
	ConnectionID string         `json:"connection_id"`
	Kind         TransportKind  `json:"kind"`
	Address      string         `json:"address"`
	BaudRate     int            `json:"baud_rate,omitempty"`
	Dialect      string         `json:"dialect"`
	State        WorkflowState  `json:"state"`
	Window       int            `json:"window"`
	Outstanding  int            `json:"outstanding"`
	ActiveJobID  string         `json:"active_job_id,omitempty"`
	Firmware     string         `json:"firmware,omitempty"`
	LastError    *errors.Detail `json:"last_error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	LastUsed     time.Time      `json:"last_used"`
}

// PortInfo описывает доступный последовательный порт.
type PortInfo struct {
	Name string `json:"name"`
}
