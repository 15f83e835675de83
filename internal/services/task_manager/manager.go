// Package task_manager выполняет ресурсоемкие фоновые задачи в
// ограниченном пуле воркеров. Задачи никогда не обращаются к станкам.
package task_manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/iwtcode/cncService/internal/domain/entities"
	"github.com/iwtcode/cncService/internal/domain/models"
	"github.com/iwtcode/cncService/internal/interfaces"
	"github.com/iwtcode/cncService/internal/metrics"
	"github.com/iwtcode/cncService/internal/middleware/logging"
	apperrors "github.com/iwtcode/cncService/pkg/errors"
)

const DefaultCancelGrace = 5 * time.Second

type Config struct {
	Workers     int           // 0 - runtime.NumCPU()
	CancelGrace time.Duration // время на кооперативную отмену
}

type taskEntry struct {
	id      string
	handler Handler
	payload json.RawMessage

	// pubMu упорядочивает изменения статуса и их публикацию. Порядок
	// блокировок: pubMu, затем Manager.mu.
	pubMu sync.Mutex

	task            models.Task
	ctx             context.Context
	cancel          context.CancelFunc
	cancelRequested bool
	abandoned       bool
	grace           *time.Timer
}

// Manager - очередь и пул фоновых задач.
type Manager struct {
	cfg      Config
	repo     interfaces.TaskRepository
	results  ResultStore
	bus      interfaces.EventPublisher
	metrics  *metrics.Metrics
	logger   *logging.Logger
	pool     *ants.Pool
	handlers map[string]Handler

	mu      sync.RWMutex
	tasks   map[string]*taskEntry
	order   []string
	pending []*taskEntry
	closed  bool
	// брошенные обработчики занимают воркеры сверх cfg.Workers
	abandoned int

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

var _ interfaces.TaskService = (*Manager)(nil)

func NewManager(cfg Config, repo interfaces.TaskRepository, results ResultStore, bus interfaces.EventPublisher, m *metrics.Metrics, logger *logging.Logger) (*Manager, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = DefaultCancelGrace
	}
	if results == nil {
		results = NewMemoryResultStore()
	}
	logger = logger.WithPrefix("TASKS")

	pool, err := ants.NewPool(cfg.Workers,
		ants.WithPanicHandler(func(p any) {
			logger.Error("Worker panic escaped task recovery", "panic", p)
		}),
		ants.WithLogger(antsLogger{logger}),
	)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать пул воркеров: %w", err)
	}

	mgr := &Manager{
		cfg:      cfg,
		repo:     repo,
		results:  results,
		bus:      bus,
		metrics:  m,
		logger:   logger,
		pool:     pool,
		handlers: builtinHandlers(),
		tasks:    make(map[string]*taskEntry),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go mgr.dispatch()

	logger.Info("Task pool started", "workers", cfg.Workers, "cancel_grace", cfg.CancelGrace)
	return mgr, nil
}

// Register добавляет или заменяет обработчик типа задач.
func (m *Manager) Register(taskType string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[taskType] = h
}

// Enqueue ставит задачу в очередь FIFO.
func (m *Manager) Enqueue(spec models.TaskSpec) (*models.Task, error) {
	m.mu.Lock()
	h, ok := m.handlers[spec.Type]
	if !ok {
		m.mu.Unlock()
		return nil, apperrors.NewAppError(apperrors.BadRequestErrorCode, "unknown_task_type",
			fmt.Errorf("неизвестный тип задачи '%s'", spec.Type), true)
	}
	if m.closed {
		m.mu.Unlock()
		return nil, apperrors.NewInvalidState("enqueue", "task pool", "", "Closed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &taskEntry{
		id:      uuid.New().String(),
		handler: h,
		payload: spec.Payload,
		ctx:     ctx,
		cancel:  cancel,
		task: models.Task{
			Type:      spec.Type,
			Status:    models.TaskQueued,
			CreatedAt: time.Now(),
		},
	}
	e.task.ID = e.id
	// Running не публикуется раньше Queued
	e.pubMu.Lock()
	m.tasks[e.id] = e
	m.order = append(m.order, e.id)
	m.pending = append(m.pending, e)
	task := e.task
	m.mu.Unlock()

	m.persist(task, "")
	m.publishStatus(task)
	e.pubMu.Unlock()
	m.signal()

	m.logger.Info("Task enqueued", "task_id", task.ID, "type", task.Type)
	return &task, nil
}

// Cancel отменяет задачу. Из очереди - сразу, выполняющуюся - через
// контекст; не уложившаяся в период отмены задача помечается Failed с
// TaskError{Timeout}. Отмена завершенной задачи ничего не делает.
func (m *Manager) Cancel(taskID string) (*models.Task, error) {
	m.mu.RLock()
	e, ok := m.tasks[taskID]
	m.mu.RUnlock()
	if !ok {
		return m.Get(taskID)
	}

	e.pubMu.Lock()
	defer e.pubMu.Unlock()

	m.mu.Lock()
	switch e.task.Status {
	case models.TaskQueued:
		terr := apperrors.NewTaskError(apperrors.TaskCancelled, taskID, "отменена в очереди", nil)
		m.finishLocked(e, models.TaskCancelled, nil, terr)
		task := e.task
		m.mu.Unlock()
		m.finished(task, "")
		return &task, nil

	case models.TaskRunning:
		if !e.cancelRequested {
			e.cancelRequested = true
			e.cancel()
			e.grace = time.AfterFunc(m.cfg.CancelGrace, func() { m.forceTerminate(e) })
			m.logger.Info("Task cancellation requested", "task_id", taskID, "grace", m.cfg.CancelGrace)
		}
	}
	task := e.task
	m.mu.Unlock()
	return &task, nil
}

// Get возвращает снимок задачи. Задачи прошлых запусков процесса
// читаются из хранилища.
func (m *Manager) Get(taskID string) (*models.Task, error) {
	m.mu.RLock()
	e, ok := m.tasks[taskID]
	var task models.Task
	if ok {
		task = e.task
	}
	m.mu.RUnlock()
	if ok {
		return &task, nil
	}

	rec, err := m.repo.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	task = recordToTask(*rec)
	if rec.ResultDigest != "" {
		if data, err := m.results.Get(taskID); err == nil {
			task.Result = data
		}
	}
	return &task, nil
}

// List возвращает задачи текущего запуска в порядке постановки.
func (m *Manager) List() []*models.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Task, 0, len(m.order))
	for _, id := range m.order {
		task := m.tasks[id].task
		out = append(out, &task)
	}
	return out
}

// RecoverUnfinished помечает Failed задачи, прерванные перезапуском.
func (m *Manager) RecoverUnfinished() (int, error) {
	records, err := m.repo.ListUnfinishedTasks()
	if err != nil {
		return 0, err
	}
	now := time.Now()
	for i := range records {
		rec := &records[i]
		terr := apperrors.NewTaskError(apperrors.TaskExecutionFailure, rec.TaskID, "прервана перезапуском сервиса", nil)
		d := terr.Detail()
		rec.Status = string(models.TaskFailed)
		rec.ErrorKind, rec.ErrorCode, rec.ErrorMessage = d.Kind, d.Code, d.Message
		rec.FinishedAt = &now
		if err := m.repo.SaveTask(rec); err != nil {
			m.logger.Error("Failed to mark interrupted task", "task_id", rec.TaskID, "error", err)
		}
	}
	return len(records), nil
}

// Close останавливает прием задач, отменяет выполняющиеся и освобождает
// пул, ожидая воркеры не дольше периода отмены.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	var ids []string
	for _, id := range m.order {
		if !m.tasks[id].task.Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	for _, id := range ids {
		_, _ = m.Cancel(id)
	}
	close(m.stop)
	select {
	case <-m.done:
	case <-time.After(m.cfg.CancelGrace):
		m.logger.Warn("Dispatcher is still waiting for a free worker")
	}

	if err := m.pool.ReleaseTimeout(m.cfg.CancelGrace); err != nil {
		m.logger.Warn("Workers did not stop in time", "error", err)
	}
	m.logger.Info("Task pool stopped")
}

// dispatch передает задачи пулу строго в порядке постановки. Submit
// блокируется, пока все воркеры заняты.
func (m *Manager) dispatch() {
	defer close(m.done)
	for {
		m.mu.Lock()
		var next *taskEntry
		if len(m.pending) > 0 {
			next = m.pending[0]
			m.pending[0] = nil
			m.pending = m.pending[1:]
		}
		m.mu.Unlock()

		if next == nil {
			select {
			case <-m.wake:
				continue
			case <-m.stop:
				return
			}
		}

		e := next
		if err := m.pool.Submit(func() { m.execute(e) }); err != nil {
			m.logger.Error("Failed to submit task to pool", "task_id", e.id, "error", err)
			m.complete(e, nil, apperrors.NewTaskError(apperrors.TaskExecutionFailure, e.id, "пул воркеров недоступен", err))
		}
	}
}

func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) execute(e *taskEntry) {
	e.pubMu.Lock()
	m.mu.Lock()
	if e.task.Status != models.TaskQueued {
		m.mu.Unlock()
		e.pubMu.Unlock()
		return
	}
	now := time.Now()
	e.task.Status = models.TaskRunning
	e.task.StartedAt = &now
	task := e.task
	m.mu.Unlock()
	m.metrics.TaskStarted()
	m.persist(task, "")
	m.publishStatus(task)
	e.pubMu.Unlock()

	m.logger.Debug("Task started", "task_id", e.id, "type", task.Type)
	result, err := m.run(e)
	m.complete(e, result, err)
}

// run вызывает обработчик, превращая панику в TaskError{ExecutionFailure}.
func (m *Manager) run(e *taskEntry) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			m.logger.Error("Task panicked", "task_id", e.id, "panic", p)
			err = apperrors.NewTaskError(apperrors.TaskExecutionFailure, e.id, fmt.Sprintf("panic: %v", p), nil)
		}
	}()
	return e.handler(e.ctx, e.payload, &Reporter{ctx: e.ctx, m: m, e: e})
}

// complete фиксирует результат ровно один раз. Поздний результат после
// принудительного завершения отбрасывается.
func (m *Manager) complete(e *taskEntry, result any, err error) {
	var data []byte
	if err == nil && result != nil {
		var merr error
		if data, merr = json.Marshal(result); merr != nil {
			err = apperrors.NewTaskError(apperrors.TaskExecutionFailure, e.id, "результат не сериализуется", merr)
		}
	}

	e.pubMu.Lock()
	defer e.pubMu.Unlock()

	m.mu.RLock()
	status := e.task.Status
	m.mu.RUnlock()
	if status.IsTerminal() {
		m.logger.Warn("Late task completion ignored", "task_id", e.id, "status", status, "error", err)
		m.reclaimWorker(e)
		return
	}

	var digest string
	if err == nil && data != nil {
		d, serr := m.results.Put(e.id, data)
		if serr != nil {
			m.logger.Error("Failed to store task result", "task_id", e.id, "error", serr)
		}
		digest = d
	}

	m.mu.Lock()
	switch {
	case err == nil:
		m.finishLocked(e, models.TaskSucceeded, data, nil)
	case e.cancelRequested:
		m.finishLocked(e, models.TaskCancelled, nil, apperrors.NewTaskError(apperrors.TaskCancelled, e.id, "отменена по запросу", nil))
	default:
		var terr *apperrors.TaskError
		if !errors.As(err, &terr) {
			terr = apperrors.NewTaskError(apperrors.TaskExecutionFailure, e.id, "", err)
		}
		m.finishLocked(e, models.TaskFailed, nil, terr)
	}
	task := e.task
	m.mu.Unlock()

	m.finished(task, digest)
}

// forceTerminate срабатывает по истечении периода отмены. Горутина
// обработчика остается брошенной, ее результат будет отброшен.
func (m *Manager) forceTerminate(e *taskEntry) {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()

	m.mu.Lock()
	if e.task.Status != models.TaskRunning {
		m.mu.Unlock()
		return
	}
	terr := apperrors.NewTaskError(apperrors.TaskTimeout, e.id,
		fmt.Sprintf("не завершилась за %s после отмены", m.cfg.CancelGrace), nil)
	m.finishLocked(e, models.TaskFailed, nil, terr)
	task := e.task
	// воркер брошенного обработчика возвращается в пул только после его
	// выхода, поэтому емкость пула временно растет на один воркер
	e.abandoned = true
	m.abandoned++
	capacity := m.cfg.Workers + m.abandoned
	m.pool.Tune(capacity)
	m.mu.Unlock()

	m.metrics.TaskAbandoned()
	m.logger.Error("Task force-terminated", "task_id", e.id, "grace", m.cfg.CancelGrace, "pool_capacity", capacity)
	m.finished(task, "")
}

// reclaimWorker возвращает пулу исходную емкость, когда брошенный
// обработчик наконец завершился.
func (m *Manager) reclaimWorker(e *taskEntry) {
	m.mu.Lock()
	if !e.abandoned {
		m.mu.Unlock()
		return
	}
	e.abandoned = false
	m.abandoned--
	capacity := m.cfg.Workers + m.abandoned
	m.pool.Tune(capacity)
	m.mu.Unlock()

	m.metrics.TaskReclaimed()
	m.logger.Info("Abandoned task handler returned", "task_id", e.id, "pool_capacity", capacity)
}

// progress публикует монотонный прогресс выполняющейся задачи.
func (m *Manager) progress(e *taskEntry, percent int) {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()

	m.mu.Lock()
	if e.task.Status != models.TaskRunning {
		status := e.task.Status
		m.mu.Unlock()
		if status.IsTerminal() {
			m.logger.Warn("Progress after completion ignored", "task_id", e.id, "status", status, "progress", percent)
		}
		return
	}
	if percent <= e.task.Progress {
		m.mu.Unlock()
		return
	}
	e.task.Progress = percent
	m.mu.Unlock()

	m.bus.Publish(models.Event{
		Topic:    models.TopicTasks,
		Type:     models.EventTaskProgress,
		TaskID:   e.id,
		Progress: percent,
	})
}

// finishLocked переводит задачу в терминальный статус. Вызывается под
// pubMu и mu.
func (m *Manager) finishLocked(e *taskEntry, status models.TaskStatus, result []byte, terr *apperrors.TaskError) {
	now := time.Now()
	e.task.Status = status
	e.task.FinishedAt = &now
	if status == models.TaskSucceeded {
		e.task.Progress = 100
		e.task.Result = result
	}
	if terr != nil {
		d := terr.Detail()
		e.task.Error = &d
	}
	if e.grace != nil {
		e.grace.Stop()
		e.grace = nil
	}
	e.cancel()
}

func (m *Manager) finished(task models.Task, digest string) {
	var started time.Time
	if task.StartedAt != nil {
		started = *task.StartedAt
	}
	m.metrics.TaskFinished(string(task.Status), started)
	m.persist(task, digest)
	m.publishStatus(task)
	m.logger.Info("Task finished", "task_id", task.ID, "status", task.Status)
}

func (m *Manager) persist(task models.Task, digest string) {
	if err := m.repo.SaveTask(taskToRecord(task, digest)); err != nil {
		m.logger.Error("Failed to persist task", "task_id", task.ID, "error", err)
	}
}

func (m *Manager) publishStatus(task models.Task) {
	m.bus.Publish(models.Event{
		Topic:    models.TopicTasks,
		Type:     models.EventTaskStatusChanged,
		TaskID:   task.ID,
		State:    string(task.Status),
		Progress: task.Progress,
		Error:    task.Error,
	})
}

func taskToRecord(task models.Task, digest string) *entities.TaskRecord {
	rec := &entities.TaskRecord{
		TaskID:       task.ID,
		Type:         task.Type,
		Status:       string(task.Status),
		Progress:     task.Progress,
		ResultDigest: digest,
		CreatedAt:    task.CreatedAt,
		StartedAt:    task.StartedAt,
		FinishedAt:   task.FinishedAt,
	}
	if task.Error != nil {
		rec.ErrorKind, rec.ErrorCode, rec.ErrorMessage = task.Error.Kind, task.Error.Code, task.Error.Message
	}
	return rec
}

func recordToTask(rec entities.TaskRecord) models.Task {
	task := models.Task{
		ID:         rec.TaskID,
		Type:       rec.Type,
		Status:     models.TaskStatus(rec.Status),
		Progress:   rec.Progress,
		CreatedAt:  rec.CreatedAt,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
	}
	if rec.ErrorKind != "" {
		task.Error = &apperrors.Detail{Kind: rec.ErrorKind, Code: rec.ErrorCode, ID: rec.TaskID, Message: rec.ErrorMessage}
	}
	return task
}

// antsLogger направляет сообщения пула в логгер сервиса.
type antsLogger struct {
	l *logging.Logger
}

func (a antsLogger) Printf(format string, args ...any) {
	a.l.Warn(fmt.Sprintf(format, args...))
}
