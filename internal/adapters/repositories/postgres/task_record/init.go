package task_record

import (
	"github.com/iwtcode/cncService/internal/interfaces"
	"gorm.io/gorm"
)

type TaskRecordRepositoryImpl struct {
	db *gorm.DB
}

func NewTaskRecordRepository(db *gorm.DB) interfaces.TaskRepository {
	return &TaskRecordRepositoryImpl{db: db}
}
