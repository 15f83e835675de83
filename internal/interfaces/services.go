package interfaces

import (
	"context"

	"github.com/iwtcode/cncService/internal/domain/entities"
	"github.com/iwtcode/cncService/internal/domain/models"
)

// MachineService - это агрегирующий интерфейс для работы со станками.
type MachineService interface {
	ConnectionManager
	JobRunner
	Snapshot(connectionID string) *models.TopicSnapshot
}

// ConnectionManager определяет контракт для управления реестром сессий.
type ConnectionManager interface {
	CreateConnection(ctx context.Context, req models.ConnectionRequest) (*models.ConnectionInfo, error)
	RestoreConnection(ctx context.Context, conn entities.MachineConnection) (*models.ConnectionInfo, error)
	GetConnection(connectionID string) (*models.ConnectionInfo, error)
	GetAllConnections() []*models.ConnectionInfo
	DeleteConnection(connectionID string) error
	Reconnect(ctx context.Context, connectionID string) (*models.ConnectionInfo, error)
	SendCommand(ctx context.Context, connectionID, line string) (*models.CommandReply, error)
	ListPorts() ([]models.PortInfo, error)
	Close()
}

// JobRunner определяет контракт для исполнения заданий на станках.
type JobRunner interface {
	SubmitJob(connectionID string, lines []string) (*models.Job, error)
	StartJob(ctx context.Context, jobID string) (*models.Job, error)
	PauseJob(ctx context.Context, jobID string) (*models.Job, error)
	ResumeJob(ctx context.Context, jobID string) (*models.Job, error)
	CancelJob(ctx context.Context, jobID string) (*models.Job, error)
	GetJob(jobID string) (*models.Job, error)
	ListJobs(connectionID string) ([]*models.Job, error)
	RecoverUnfinishedJobs() (int, error)
}

// TaskService определяет контракт пула фоновых задач.
type TaskService interface {
	Enqueue(spec models.TaskSpec) (*models.Task, error)
	Cancel(taskID string) (*models.Task, error)
	Get(taskID string) (*models.Task, error)
	List() []*models.Task
	RecoverUnfinished() (int, error)
	Close()
}

// EventPublisher публикует события в шину.
type EventPublisher interface {
	Publish(ev models.Event) models.Event
}
