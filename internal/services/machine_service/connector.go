package machine_service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iwtcode/cncService/internal/config"
	"github.com/iwtcode/cncService/internal/controller"
	"github.com/iwtcode/cncService/internal/controller/dialect"
	"github.com/iwtcode/cncService/internal/domain/entities"
	"github.com/iwtcode/cncService/internal/domain/models"
	"github.com/iwtcode/cncService/internal/interfaces"
	"github.com/iwtcode/cncService/internal/middleware/logging"
	"github.com/iwtcode/cncService/internal/transport"
	apperrors "github.com/iwtcode/cncService/pkg/errors"
)

type connection struct {
	meta     entities.MachineConnection
	session  *controller.Session
	lastUsed time.Time
}

// ConnectionManager - реестр подключений процесса. Каждым подключением
// владеет ровно одна сессия контроллера.
type ConnectionManager struct {
	mu     sync.RWMutex
	pool   map[string]*connection
	opener transport.Opener
	cfg    config.ControllerConfig
	dbRepo interfaces.ConnectionRepository
	runner *JobRunner
	logger *logging.Logger
}

func NewConnectionManager(cfg config.ControllerConfig, opener transport.Opener, dbRepo interfaces.ConnectionRepository, runner *JobRunner, logger *logging.Logger) *ConnectionManager {
	cm := &ConnectionManager{
		pool:   make(map[string]*connection),
		opener: opener,
		cfg:    cfg,
		dbRepo: dbRepo,
		runner: runner,
		logger: logger.WithPrefix("CONNECTOR"),
	}
	runner.sessions = cm
	return cm
}

func (cm *ConnectionManager) CreateConnection(ctx context.Context, req models.ConnectionRequest) (*models.ConnectionInfo, error) {
	meta, err := cm.normalize(req)
	if err != nil {
		return nil, err
	}

	if cm.activeByAddress(meta.Address) != "" {
		return nil, cm.duplicate(meta.Address)
	}
	existing, err := cm.dbRepo.GetByAddress(meta.Address)
	if err != nil && !errors.Is(err, apperrors.ErrDataNotFound) {
		return nil, fmt.Errorf("ошибка при проверке подключения в БД: %w", err)
	}
	if existing != nil {
		cm.logger.Warn("Connection for address exists in DB but not in pool. Deleting old DB record.", "address", meta.Address)
		_ = cm.dbRepo.Delete(existing.ConnectionID)
	}

	meta.ConnectionID = uuid.New().String()
	meta.CreatedAt = time.Now()
	conn := &connection{meta: meta, lastUsed: meta.CreatedAt}
	conn.session = cm.newSession(meta)

	if err := conn.session.Open(ctx); err != nil {
		cm.runner.connectionRemoved(meta.ConnectionID)
		return nil, err
	}

	cm.mu.Lock()
	if cm.activeByAddressLocked(meta.Address) != "" {
		cm.mu.Unlock()
		_ = conn.session.Close()
		cm.runner.connectionRemoved(meta.ConnectionID)
		return nil, cm.duplicate(meta.Address)
	}
	cm.pool[meta.ConnectionID] = conn
	cm.mu.Unlock()

	if err := cm.dbRepo.Create(&meta); err != nil {
		cm.logger.Error("Failed to persist connection", "connection_id", meta.ConnectionID, "error", err)
	}

	cm.logger.Info("Connection created successfully", "connection_id", meta.ConnectionID, "address", meta.Address, "dialect", meta.Dialect)
	return cm.info(conn), nil
}

// RestoreConnection регистрирует сохраненное подключение и пытается его
// открыть. Неудача не фатальна: подключение остается Disconnected до
// явного переподключения.
func (cm *ConnectionManager) RestoreConnection(ctx context.Context, meta entities.MachineConnection) (*models.ConnectionInfo, error) {
	cm.mu.Lock()
	if _, exists := cm.pool[meta.ConnectionID]; exists {
		cm.mu.Unlock()
		return nil, cm.duplicate(meta.Address)
	}
	conn := &connection{meta: meta, lastUsed: time.Now(), session: cm.newSession(meta)}
	cm.pool[meta.ConnectionID] = conn
	cm.mu.Unlock()

	err := conn.session.Open(ctx)
	return cm.info(conn), err
}

func (cm *ConnectionManager) GetConnection(connectionID string) (*models.ConnectionInfo, error) {
	cm.mu.RLock()
	conn, ok := cm.pool[connectionID]
	cm.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewNotFound("connection", connectionID)
	}
	return cm.info(conn), nil
}

func (cm *ConnectionManager) GetAllConnections() []*models.ConnectionInfo {
	cm.mu.RLock()
	conns := make([]*connection, 0, len(cm.pool))
	for _, conn := range cm.pool {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	out := make([]*models.ConnectionInfo, 0, len(conns))
	for _, conn := range conns {
		out = append(out, cm.info(conn))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// DeleteConnection закрывает сессию (активное задание отменяется) и
// удаляет подключение из реестра и БД.
func (cm *ConnectionManager) DeleteConnection(connectionID string) error {
	cm.mu.Lock()
	conn, exists := cm.pool[connectionID]
	delete(cm.pool, connectionID)
	cm.mu.Unlock()

	if !exists {
		if err := cm.dbRepo.Delete(connectionID); err != nil {
			return err
		}
		cm.logger.Info("Connection (not in pool) successfully deleted from DB.", "connection_id", connectionID)
		return nil
	}

	_ = conn.session.Close()
	cm.runner.connectionRemoved(connectionID)

	if err := cm.dbRepo.Delete(connectionID); err != nil && !errors.Is(err, apperrors.ErrDataNotFound) {
		return fmt.Errorf("ошибка удаления подключения '%s' из БД: %w", connectionID, err)
	}

	cm.logger.Info("Connection deleted successfully.", "connection_id", connectionID)
	return nil
}

// Reconnect заново открывает транспорт после сбоя. Из Error сессия
// сначала отключается.
func (cm *ConnectionManager) Reconnect(ctx context.Context, connectionID string) (*models.ConnectionInfo, error) {
	cm.mu.Lock()
	conn, ok := cm.pool[connectionID]
	if ok {
		conn.lastUsed = time.Now()
	}
	cm.mu.Unlock()
	if !ok {
		return nil, apperrors.NewNotFound("connection", connectionID)
	}

	if conn.session.Status().State == models.StateError {
		cm.logger.Warn("Disconnecting session in error state before reconnect", "connection_id", connectionID)
		_ = conn.session.Close()
	}
	if err := conn.session.Open(ctx); err != nil {
		return nil, err
	}

	cm.logger.Info("Connection reopened", "connection_id", connectionID)
	return cm.info(conn), nil
}

// SendCommand отправляет одиночную команду в простаивающую сессию.
func (cm *ConnectionManager) SendCommand(ctx context.Context, connectionID, line string) (*models.CommandReply, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.ContainsAny(line, "\r\n") {
		return nil, apperrors.NewAppError(apperrors.BadRequestErrorCode, "invalid_command",
			errors.New("команда должна быть одной непустой строкой"), true)
	}

	s, err := cm.session(connectionID)
	if err != nil {
		return nil, err
	}
	cm.touch(connectionID)

	if cm.cfg.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cm.cfg.CommandTimeout)
		defer cancel()
	}

	reply, err := s.SendCommand(ctx, line)
	if err != nil {
		return nil, err
	}
	cm.logger.Info("Command executed", "connection_id", connectionID, "line", line, "reply", reply.Reply, "ok", reply.OK)
	return &reply, nil
}

func (cm *ConnectionManager) ListPorts() ([]models.PortInfo, error) {
	return transport.ListPorts()
}

// Close закрывает все сессии при остановке сервиса. Записи в БД
// сохраняются для восстановления.
func (cm *ConnectionManager) Close() {
	cm.mu.RLock()
	conns := make([]*connection, 0, len(cm.pool))
	for _, conn := range cm.pool {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.session.Close()
	}
	cm.logger.Info("All sessions closed", "count", len(conns))
}

func (cm *ConnectionManager) session(connectionID string) (*controller.Session, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	conn, ok := cm.pool[connectionID]
	if !ok {
		return nil, apperrors.NewNotFound("connection", connectionID)
	}
	return conn.session, nil
}

func (cm *ConnectionManager) touch(connectionID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if conn, ok := cm.pool[connectionID]; ok {
		conn.lastUsed = time.Now()
	}
}

func (cm *ConnectionManager) newSession(meta entities.MachineConnection) *controller.Session {
	return controller.NewSession(controller.Options{
		ConnectionID: meta.ConnectionID,
		Params: transport.Params{
			Kind:           models.TransportKind(meta.Kind),
			Address:        meta.Address,
			BaudRate:       meta.BaudRate,
			ConnectTimeout: cm.cfg.ConnectTimeout,
		},
		Dialect:      dialect.ForName(meta.Dialect),
		Window:       meta.Window,
		HaltOnCancel: cm.cfg.HaltOnCancel,
		DrainTimeout: cm.cfg.DrainTimeout,
	}, cm.opener, cm.runner, cm.logger)
}

// normalize проверяет запрос и подставляет значения по умолчанию.
func (cm *ConnectionManager) normalize(req models.ConnectionRequest) (entities.MachineConnection, error) {
	meta := entities.MachineConnection{
		Kind:     string(req.Kind),
		Address:  strings.TrimSpace(req.Address),
		BaudRate: req.BaudRate,
		Dialect:  strings.ToLower(strings.TrimSpace(req.Dialect)),
		Window:   req.Window,
	}
	badRequest := func(format string, args ...any) error {
		return apperrors.NewAppError(apperrors.BadRequestErrorCode, apperrors.BadRequest, fmt.Errorf(format, args...), true)
	}

	switch models.TransportKind(meta.Kind) {
	case "":
		meta.Kind = string(models.TransportSerial)
	case models.TransportSerial, models.TransportTCP:
	default:
		return meta, badRequest("неизвестный тип транспорта '%s'", meta.Kind)
	}
	if meta.Address == "" {
		return meta, badRequest("адрес подключения не задан")
	}
	if meta.Kind == string(models.TransportSerial) && meta.BaudRate == 0 {
		meta.BaudRate = cm.cfg.DefaultBaud
	}
	if meta.Dialect == "" {
		meta.Dialect = cm.cfg.DefaultDialect
	}
	if !dialect.Known(meta.Dialect) {
		return meta, badRequest("неизвестная прошивка '%s'", meta.Dialect)
	}
	meta.Dialect = dialect.ForName(meta.Dialect).Name()
	if meta.Window < 0 {
		return meta, badRequest("окно не может быть отрицательным")
	}
	return meta, nil
}

func (cm *ConnectionManager) activeByAddress(address string) string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.activeByAddressLocked(address)
}

func (cm *ConnectionManager) activeByAddressLocked(address string) string {
	for id, conn := range cm.pool {
		if conn.meta.Address == address {
			return id
		}
	}
	return ""
}

func (cm *ConnectionManager) duplicate(address string) error {
	return apperrors.NewInvalidState("connect", "address", address, "Connected")
}

func (cm *ConnectionManager) info(conn *connection) *models.ConnectionInfo {
	st := conn.session.Status()

	cm.mu.RLock()
	lastUsed := conn.lastUsed
	cm.mu.RUnlock()

	info := &models.ConnectionInfo{
		ConnectionID: conn.meta.ConnectionID,
		Kind:         models.TransportKind(conn.meta.Kind),
		Address:      conn.meta.Address,
		BaudRate:     conn.meta.BaudRate,
		Dialect:      conn.meta.Dialect,
		State:        st.State,
		Window:       st.Window,
		Outstanding:  st.Outstanding,
		ActiveJobID:  st.StreamID,
		Firmware:     st.Firmware,
		LastError:    detailOf(st.LastErr),
		CreatedAt:    conn.meta.CreatedAt,
		LastUsed:     lastUsed,
	}
	return info
}
