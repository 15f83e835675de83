package usecases

import (
	"context"

	"github.com/iwtcode/cncService/internal/domain/models"
)

func (u *Usecase) CreateConnection(ctx context.Context, req models.ConnectionRequest) (*models.ConnectionInfo, error) {
	return u.machineSvc.CreateConnection(ctx, req)
}

func (u *Usecase) GetConnection(connectionID string) (*models.ConnectionInfo, error) {
	return u.machineSvc.GetConnection(connectionID)
}

func (u *Usecase) GetAllConnections() []*models.ConnectionInfo {
	return u.machineSvc.GetAllConnections()
}

func (u *Usecase) DeleteConnection(connectionID string) error {
	return u.machineSvc.DeleteConnection(connectionID)
}

func (u *Usecase) Reconnect(ctx context.Context, connectionID string) (*models.ConnectionInfo, error) {
	return u.machineSvc.Reconnect(ctx, connectionID)
}

func (u *Usecase) SendCommand(ctx context.Context, connectionID, line string) (*models.CommandReply, error) {
	return u.machineSvc.SendCommand(ctx, connectionID, line)
}

func (u *Usecase) ListPorts() ([]models.PortInfo, error) {
	return u.machineSvc.ListPorts()
}
