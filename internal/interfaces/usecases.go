package interfaces

import (
	"context"

	"github.com/iwtcode/cncService/internal/domain/models"
	"github.com/iwtcode/cncService/internal/services/eventbus"
)

// Usecases - это агрегирующий интерфейс для всех use cases
type Usecases interface {
	ConnectionUsecase
	JobUsecase
	TaskUsecase
	RealtimeUsecase
}

type ConnectionUsecase interface {
	CreateConnection(ctx context.Context, req models.ConnectionRequest) (*models.ConnectionInfo, error)
	GetConnection(connectionID string) (*models.ConnectionInfo, error)
	GetAllConnections() []*models.ConnectionInfo
	DeleteConnection(connectionID string) error
	Reconnect(ctx context.Context, connectionID string) (*models.ConnectionInfo, error)
	SendCommand(ctx context.Context, connectionID, line string) (*models.CommandReply, error)
	ListPorts() ([]models.PortInfo, error)
}

type JobUsecase interface {
	UploadJob(connectionID string, req models.UploadJobRequest) (*models.Job, error)
	StartJob(ctx context.Context, jobID string) (*models.Job, error)
	PauseJob(ctx context.Context, jobID string) (*models.Job, error)
	ResumeJob(ctx context.Context, jobID string) (*models.Job, error)
	CancelJob(ctx context.Context, jobID string) (*models.Job, error)
	GetJob(jobID string) (*models.Job, error)
	ListJobs(connectionID string) ([]*models.Job, error)
}

type TaskUsecase interface {
	EnqueueTask(spec models.TaskSpec) (*models.Task, error)
	CancelTask(taskID string) (*models.Task, error)
	GetTask(taskID string) (*models.Task, error)
	ListTasks() []*models.Task
}

// RealtimeUsecase управляет подписками клиента realtime-канала.
type RealtimeUsecase interface {
	OpenStream(clientID string) *eventbus.Client
	CloseStream(c *eventbus.Client)
	Subscribe(c *eventbus.Client, topics []string) error
	Unsubscribe(c *eventbus.Client, topics []string) error
	Resync(c *eventbus.Client, topic string, since uint64) error
	Snapshot(c *eventbus.Client, topic string) (uint64, error)
}
