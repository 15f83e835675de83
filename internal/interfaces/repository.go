package interfaces

import (
	"github.com/iwtcode/cncService/internal/domain/entities"
)

// ConnectionRepository определяет контракт для работы с сохраненными подключениями в БД
type ConnectionRepository interface {
	Create(conn *entities.MachineConnection) error
	GetByAddress(address string) (*entities.MachineConnection, error)
	GetByID(connectionID string) (*entities.MachineConnection, error)
	Delete(connectionID string) error
	GetAll() ([]entities.MachineConnection, error)
}

// JobRepository хранит историю заданий.
type JobRepository interface {
	SaveJob(job *entities.JobRecord) error
	GetJob(jobID string) (*entities.JobRecord, error)
	ListJobs(connectionID string) ([]entities.JobRecord, error)
	ListUnfinishedJobs() ([]entities.JobRecord, error)
}

// TaskRepository хранит историю фоновых задач.
type TaskRepository interface {
	SaveTask(task *entities.TaskRecord) error
	GetTask(taskID string) (*entities.TaskRecord, error)
	ListUnfinishedTasks() ([]entities.TaskRecord, error)
}

// Repository - агрегирующий интерфейс хранилища.
type Repository interface {
	ConnectionRepository
	JobRepository
	TaskRepository
}
