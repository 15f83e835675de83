// Package memory - хранилище в памяти процесса. Используется, когда
// PostgreSQL отключен, и в тестах.
package memory

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/iwtcode/cncService/internal/domain/entities"
	"github.com/iwtcode/cncService/internal/interfaces"
	apperrors "github.com/iwtcode/cncService/pkg/errors"
)

type Repository struct {
	mu          sync.RWMutex
	connections map[string]entities.MachineConnection
	jobs        map[string]entities.JobRecord
	tasks       map[string]entities.TaskRecord
}

var _ interfaces.Repository = (*Repository)(nil)

func NewRepository() *Repository {
	return &Repository{
		connections: make(map[string]entities.MachineConnection),
		jobs:        make(map[string]entities.JobRecord),
		tasks:       make(map[string]entities.TaskRecord),
	}
}

// --- Подключения ---

func (r *Repository) Create(conn *entities.MachineConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.connections {
		if existing.Address == conn.Address {
			return fmt.Errorf("подключение для адреса '%s' уже существует", conn.Address)
		}
	}
	if _, ok := r.connections[conn.ConnectionID]; ok {
		return fmt.Errorf("подключение '%s' уже существует", conn.ConnectionID)
	}
	r.connections[conn.ConnectionID] = *conn
	return nil
}

func (r *Repository) GetByAddress(address string) (*entities.MachineConnection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, conn := range r.connections {
		if conn.Address == address {
			return &conn, nil
		}
	}
	return nil, apperrors.NewNotFound("connection", address)
}

func (r *Repository) GetByID(connectionID string) (*entities.MachineConnection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[connectionID]
	if !ok {
		return nil, apperrors.NewNotFound("connection", connectionID)
	}
	return &conn, nil
}

func (r *Repository) Delete(connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[connectionID]; !ok {
		return apperrors.NewNotFound("connection", connectionID)
	}
	delete(r.connections, connectionID)
	return nil
}

func (r *Repository) GetAll() ([]entities.MachineConnection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]entities.MachineConnection, 0, len(r.connections))
	for _, conn := range r.connections {
		out = append(out, conn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- Задания ---

func (r *Repository) SaveJob(job *entities.JobRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.JobID] = *job
	return nil
}

func (r *Repository) GetJob(jobID string) (*entities.JobRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, apperrors.NewNotFound("job", jobID)
	}
	return &job, nil
}

func (r *Repository) ListJobs(connectionID string) ([]entities.JobRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []entities.JobRecord
	for _, job := range r.jobs {
		if job.ConnectionID == connectionID {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *Repository) ListUnfinishedJobs() ([]entities.JobRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []entities.JobRecord
	for _, job := range r.jobs {
		if slices.Contains(entities.UnfinishedJobStatuses, job.Status) {
			out = append(out, job)
		}
	}
	return out, nil
}

// --- Задачи ---

func (r *Repository) SaveTask(task *entities.TaskRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.TaskID] = *task
	return nil
}

func (r *Repository) GetTask(taskID string) (*entities.TaskRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return nil, apperrors.NewNotFound("task", taskID)
	}
	return &task, nil
}

func (r *Repository) ListUnfinishedTasks() ([]entities.TaskRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []entities.TaskRecord
	for _, task := range r.tasks {
		if slices.Contains(entities.UnfinishedTaskStatuses, task.Status) {
			out = append(out, task)
		}
	}
	return out, nil
}
