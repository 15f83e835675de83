package machine_connection

import (
	"errors"

	"github.com/iwtcode/cncService/internal/domain/entities"
	apperrors "github.com/iwtcode/cncService/pkg/errors"
	"gorm.io/gorm"
)

func (r *MachineConnectionRepositoryImpl) Create(conn *entities.MachineConnection) error {
	return r.db.Create(conn).Error
}

func (r *MachineConnectionRepositoryImpl) GetByAddress(address string) (*entities.MachineConnection, error) {
	var conn entities.MachineConnection
	err := r.db.Where("address = ?", address).First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("connection", address)
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *MachineConnectionRepositoryImpl) GetByID(connectionID string) (*entities.MachineConnection, error) {
	var conn entities.MachineConnection
	err := r.db.Where("connection_id = ?", connectionID).First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("connection", connectionID)
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *MachineConnectionRepositoryImpl) Delete(connectionID string) error {
	result := r.db.Where("connection_id = ?", connectionID).Delete(&entities.MachineConnection{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFound("connection", connectionID)
	}
	return nil
}

// GetAll возвращает все сохраненные подключения
func (r *MachineConnectionRepositoryImpl) GetAll() ([]entities.MachineConnection, error) {
	var conns []entities.MachineConnection
	if err := r.db.Order("created_at").Find(&conns).Error; err != nil {
		return nil, err
	}
	return conns, nil
}
