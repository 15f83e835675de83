package job_record

import (
	"errors"

	"github.com/iwtcode/cncService/internal/domain/entities"
	apperrors "github.com/iwtcode/cncService/pkg/errors"
	"gorm.io/gorm"
)

// SaveJob создает запись или обновляет существующую целиком
func (r *JobRecordRepositoryImpl) SaveJob(job *entities.JobRecord) error {
	return r.db.Save(job).Error
}

func (r *JobRecordRepositoryImpl) GetJob(jobID string) (*entities.JobRecord, error) {
	var job entities.JobRecord
	err := r.db.Where("job_id = ?", jobID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("job", jobID)
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *JobRecordRepositoryImpl) ListJobs(connectionID string) ([]entities.JobRecord, error) {
	var jobs []entities.JobRecord
	err := r.db.Where("connection_id = ?", connectionID).Order("created_at").Find(&jobs).Error
	return jobs, err
}

func (r *JobRecordRepositoryImpl) ListUnfinishedJobs() ([]entities.JobRecord, error) {
	var jobs []entities.JobRecord
	err := r.db.Where("status IN ?", entities.UnfinishedJobStatuses).Find(&jobs).Error
	return jobs, err
}
