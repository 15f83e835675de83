package task_record

import (
	"errors"

	"github.com/iwtcode/cncService/internal/domain/entities"
	apperrors "github.com/iwtcode/cncService/pkg/errors"
	"gorm.io/gorm"
)

func (r *TaskRecordRepositoryImpl) SaveTask(task *entities.TaskRecord) error {
	return r.db.Save(task).Error
}

func (r *TaskRecordRepositoryImpl) GetTask(taskID string) (*entities.TaskRecord, error) {
	var task entities.TaskRecord
	err := r.db.Where("task_id = ?", taskID).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("task", taskID)
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRecordRepositoryImpl) ListUnfinishedTasks() ([]entities.TaskRecord, error) {
	var tasks []entities.TaskRecord
	err := r.db.Where("status IN ?", entities.UnfinishedTaskStatuses).Find(&tasks).Error
	return tasks, err
}
