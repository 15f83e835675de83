package machine_connection

import (
	"github.com/iwtcode/cncService/internal/interfaces"
	"gorm.io/gorm"
)

type MachineConnectionRepositoryImpl struct {
	db *gorm.DB
}

func NewMachineConnectionRepository(db *gorm.DB) interfaces.ConnectionRepository {
	return &MachineConnectionRepositoryImpl{db: db}
}
