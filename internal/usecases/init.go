package usecases

import (
	"github.com/iwtcode/cncService/internal/interfaces"
	"github.com/iwtcode/cncService/internal/services/eventbus"
)

// Usecase - агрегатор всех use case интерфейсов
type Usecase struct {
	machineSvc interfaces.MachineService
	taskSvc    interfaces.TaskService
	bus        *eventbus.Bus
}

// NewUsecases - конструктор для Usecase
func NewUsecases(
	machineSvc interfaces.MachineService,
	taskSvc interfaces.TaskService,
	bus *eventbus.Bus,
) interfaces.Usecases {
	return &Usecase{
		machineSvc: machineSvc,
		taskSvc:    taskSvc,
		bus:        bus,
	}
}
