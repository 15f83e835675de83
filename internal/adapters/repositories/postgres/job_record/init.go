package job_record

import (
	"github.com/iwtcode/cncService/internal/interfaces"
	"gorm.io/gorm"
)

type JobRecordRepositoryImpl struct {
	db *gorm.DB
}

func NewJobRecordRepository(db *gorm.DB) interfaces.JobRepository {
	return &JobRecordRepositoryImpl{db: db}
}
