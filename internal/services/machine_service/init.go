package machine_service

import (
	"github.com/iwtcode/cncService/internal/config"
	"github.com/iwtcode/cncService/internal/domain/models"
	"github.com/iwtcode/cncService/internal/interfaces"
	"github.com/iwtcode/cncService/internal/metrics"
	"github.com/iwtcode/cncService/internal/middleware/logging"
	"github.com/iwtcode/cncService/internal/transport"
)

type machineService struct {
	*ConnectionManager
	*JobRunner
}

func NewMachineService(cfg *config.AppConfig, repo interfaces.Repository, bus interfaces.EventPublisher, m *metrics.Metrics, logger *logging.Logger) interfaces.MachineService {
	return New(cfg.Controller, transport.DefaultOpener{}, repo, bus, m, logger)
}

// New собирает сервис станков поверх произвольного способа открытия
// транспорта.
func New(cfg config.ControllerConfig, opener transport.Opener, repo interfaces.Repository, bus interfaces.EventPublisher, m *metrics.Metrics, logger *logging.Logger) *machineService {
	runner := NewJobRunner(repo, bus, m, logger)
	connector := NewConnectionManager(cfg, opener, repo, runner, logger)

	return &machineService{
		ConnectionManager: connector,
		JobRunner:         runner,
	}
}

// Snapshot возвращает текущее состояние подключения и его заданий.
// Вызывается под блокировкой топика шины и не публикует событий.
func (s *machineService) Snapshot(connectionID string) *models.TopicSnapshot {
	snap := &models.TopicSnapshot{Jobs: s.jobsOf(connectionID)}
	if info, err := s.GetConnection(connectionID); err == nil {
		snap.Connection = info
	}
	return snap
}
