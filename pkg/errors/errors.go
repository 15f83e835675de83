package errors

import (
	"errors"
	"fmt"
)

const (
	InternalServerError = "internal server error"
	BadRequest          = "bad request"
	NotFound            = "not_found"
	Conflict            = "invalid_state"
	GatewayTimeout      = "connection_timeout"
	UnauthorizedError   = "unauthorized"

	BadRequestErrorCode     = 400
	UnauthorizedErrorCode   = 401
	InvalidDataCode         = 402
	ForbiddenErrorCode      = 403
	NotFoundErrorCode       = 404
	ConflictErrorCode       = 409
	InternalServerErrorCode = 500
	GatewayTimeoutErrorCode = 504
)

// AppError представляет собой стандартизированную структуру ошибки для API.
type AppError struct {
	Code         int    `json:"code"`    // HTTP статус код
	Message      string `json:"message"` // Сообщение для клиента
	Err          error  `json:"-"`       // Внутренняя ошибка, не для клиента
	IsUserFacing bool   `json:"-"`       // Флаг, указывающий, можно ли показывать `Err`
}

func (a *AppError) Error() string {
	if a == nil {
		return ""
	}
	if a.Err != nil {
		return fmt.Sprintf("%s (code: %d): %v", a.Message, a.Code, a.Err)
	}
	return fmt.Sprintf("%s (code: %d)", a.Message, a.Code)
}

func (a *AppError) Unwrap() error { return a.Err }

// NewAppError создает новый экземпляр AppError.
func NewAppError(httpCode int, message string, err error, isUserFacing bool) *AppError {
	return &AppError{
		Code:         httpCode,
		Message:      message,
		Err:          err,
		IsUserFacing: isUserFacing,
	}
}

var (
	ErrDataNotFound = errors.New("data not found")
	ErrInvalidState = errors.New("invalid state")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInternal     = errors.New("internal error")
)

// Detail - структурированное описание ошибки, достаточное клиенту для
// точного сообщения пользователю без знания протокола контроллера.
type Detail struct {
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

// Detailer реализуют все доменные ошибки.
type Detailer interface {
	Detail() Detail
}

// DetailOf извлекает структурированное описание из цепочки ошибок.
func DetailOf(err error) Detail {
	if err == nil {
		return Detail{}
	}
	var d Detailer
	if errors.As(err, &d) {
		return d.Detail()
	}
	return Detail{Kind: "Internal", Message: err.Error()}
}

// --- ConnectionError ---

type ConnectionErrorKind string

const (
	ConnNotFound  ConnectionErrorKind = "NotFound"
	ConnTimeout   ConnectionErrorKind = "Timeout"
	ConnIOFailure ConnectionErrorKind = "IOFailure"
)

// ConnectionError описывает сбой транспортного уровня.
type ConnectionError struct {
	Kind         ConnectionErrorKind
	ConnectionID string
	Address      string
	Err          error
}

func NewConnectionError(kind ConnectionErrorKind, connectionID, address string, err error) *ConnectionError {
	return &ConnectionError{Kind: kind, ConnectionID: connectionID, Address: address, Err: err}
}

func (e *ConnectionError) Error() string {
	msg := fmt.Sprintf("ошибка подключения (%s) к '%s'", e.Kind, e.Address)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Detail() Detail {
	id := e.ConnectionID
	if id == "" {
		id = e.Address
	}
	return Detail{Kind: "ConnectionError", Code: string(e.Kind), ID: id, Message: e.Error()}
}

// --- ProtocolError ---

type ProtocolErrorKind string

const (
	ProtoMalformedReply   ProtocolErrorKind = "MalformedReply"
	ProtoChecksumMismatch ProtocolErrorKind = "ChecksumMismatch"
	ProtoBufferOverflow   ProtocolErrorKind = "BufferOverflow"
	ProtoCommandRejected  ProtocolErrorKind = "CommandRejected"
	ProtoAlarm            ProtocolErrorKind = "Alarm"
	// ProtoMalformedCommand - команда содержит перевод строки и не может
	// быть отправлена как одна строка.
	ProtoMalformedCommand ProtocolErrorKind = "MalformedCommand"
)

// ProtocolError описывает нарушение протокола подтверждений или отказ
// контроллера выполнить конкретную команду.
type ProtocolError struct {
	Kind         ProtocolErrorKind
	ConnectionID string
	JobID        string
	Line         int // номер строки задания (с 1), 0 если не относится к строке
	Reply        string
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("ошибка протокола (%s)", e.Kind)
	if e.Line > 0 {
		msg += fmt.Sprintf(" на строке %d", e.Line)
	}
	if e.Reply != "" {
		msg += fmt.Sprintf(": %q", e.Reply)
	}
	return msg
}

func (e *ProtocolError) Detail() Detail {
	id := e.JobID
	if id == "" {
		id = e.ConnectionID
	}
	return Detail{Kind: "ProtocolError", Code: string(e.Kind), ID: id, Message: e.Error()}
}

// --- InvalidStateError ---

// InvalidStateError - операция недопустима в текущем состоянии. Отказ
// никогда не меняет состояние.
type InvalidStateError struct {
	Op     string
	Entity string
	ID     string
	State  string
}

func NewInvalidState(op, entity, id, state string) *InvalidStateError {
	return &InvalidStateError{Op: op, Entity: entity, ID: id, State: state}
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("операция '%s' недопустима: %s '%s' в состоянии '%s'", e.Op, e.Entity, e.ID, e.State)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

func (e *InvalidStateError) Detail() Detail {
	return Detail{Kind: "InvalidState", Code: e.State, ID: e.ID, Message: e.Error()}
}

// --- NotFoundError ---

type NotFoundError struct {
	Entity string
	ID     string
}

func NewNotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' не найден", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrDataNotFound }

func (e *NotFoundError) Detail() Detail {
	return Detail{Kind: "NotFound", Code: e.Entity, ID: e.ID, Message: e.Error()}
}

// --- TaskError ---

type TaskErrorKind string

const (
	TaskCancelled        TaskErrorKind = "Cancelled"
	TaskTimeout          TaskErrorKind = "Timeout"
	TaskExecutionFailure TaskErrorKind = "ExecutionFailure"
)

// TaskError фиксируется в записи задачи и никогда не роняет пул воркеров.
type TaskError struct {
	Kind   TaskErrorKind
	TaskID string
	Reason string
	Err    error
}

func NewTaskError(kind TaskErrorKind, taskID, reason string, err error) *TaskError {
	return &TaskError{Kind: kind, TaskID: taskID, Reason: reason, Err: err}
}

func (e *TaskError) Error() string {
	msg := fmt.Sprintf("задача '%s': %s", e.TaskID, e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TaskError) Unwrap() error { return e.Err }

func (e *TaskError) Detail() Detail {
	return Detail{Kind: "TaskError", Code: string(e.Kind), ID: e.TaskID, Message: e.Error()}
}
