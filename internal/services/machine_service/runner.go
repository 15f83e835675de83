package machine_service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iwtcode/cncService/internal/controller"
	"github.com/iwtcode/cncService/internal/domain/entities"
	"github.com/iwtcode/cncService/internal/domain/models"
	"github.com/iwtcode/cncService/internal/interfaces"
	"github.com/iwtcode/cncService/internal/metrics"
	"github.com/iwtcode/cncService/internal/middleware/logging"
	apperrors "github.com/iwtcode/cncService/pkg/errors"
)

// sessionSource выдает сессию подключения по его ID.
type sessionSource interface {
	session(connectionID string) (*controller.Session, error)
}

type jobEntry struct {
	job models.Job
	// starting - задание передается сессии, отмена из очереди недоступна
	starting bool
}

// JobRunner ведет таблицу заданий и переводит события сессий в статусы
// заданий и события шины.
type JobRunner struct {
	mu     sync.RWMutex
	jobs   map[string]*jobEntry
	states map[string]models.WorkflowState

	sessions sessionSource
	repo     interfaces.JobRepository
	bus      interfaces.EventPublisher
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

func NewJobRunner(repo interfaces.JobRepository, bus interfaces.EventPublisher, m *metrics.Metrics, logger *logging.Logger) *JobRunner {
	return &JobRunner{
		jobs:    make(map[string]*jobEntry),
		states:  make(map[string]models.WorkflowState),
		repo:    repo,
		bus:     bus,
		metrics: m,
		logger:  logger.WithPrefix("RUNNER"),
	}
}

// SubmitJob нормализует строки программы и ставит задание в очередь.
func (r *JobRunner) SubmitJob(connectionID string, lines []string) (*models.Job, error) {
	if _, err := r.sessions.session(connectionID); err != nil {
		return nil, err
	}

	lines = NormalizeLines(lines)
	if len(lines) == 0 {
		return nil, apperrors.NewAppError(apperrors.BadRequestErrorCode, "empty_job",
			errors.New("программа не содержит исполняемых строк"), true)
	}

	job := models.Job{
		ID:           uuid.New().String(),
		ConnectionID: connectionID,
		Lines:        lines,
		Total:        len(lines),
		Status:       models.JobQueued,
		CreatedAt:    time.Now(),
	}

	r.mu.Lock()
	r.jobs[job.ID] = &jobEntry{job: job}
	r.mu.Unlock()

	r.persist(job)
	r.publishStatus(job)
	r.logger.Info("Job submitted", "job_id", job.ID, "connection_id", connectionID, "lines", job.Total)

	out := snapshot(job)
	return &out, nil
}

// StartJob начинает передачу задания. Сессия должна простаивать, а
// задание - ждать в очереди.
func (r *JobRunner) StartJob(ctx context.Context, jobID string) (*models.Job, error) {
	r.mu.Lock()
	e, ok := r.jobs[jobID]
	if !ok {
		r.mu.Unlock()
		return nil, r.archived(jobID, "start")
	}
	if e.job.Status != models.JobQueued || e.starting {
		status := e.job.Status
		r.mu.Unlock()
		return nil, apperrors.NewInvalidState("start", "job", jobID, string(status))
	}
	e.starting = true
	connectionID, lines := e.job.ConnectionID, e.job.Lines
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		e.starting = false
		r.mu.Unlock()
	}()

	s, err := r.sessions.session(connectionID)
	if err != nil {
		return nil, err
	}
	if err := s.StartStream(ctx, jobID, lines); err != nil {
		return nil, err
	}
	return r.GetJob(jobID)
}

func (r *JobRunner) PauseJob(ctx context.Context, jobID string) (*models.Job, error) {
	return r.delegate(ctx, jobID, "pause", (*controller.Session).Pause)
}

func (r *JobRunner) ResumeJob(ctx context.Context, jobID string) (*models.Job, error) {
	return r.delegate(ctx, jobID, "resume", (*controller.Session).Resume)
}

// CancelJob отменяет задание. Задание из очереди отменяется сразу,
// выполняющееся - через сессию.
func (r *JobRunner) CancelJob(ctx context.Context, jobID string) (*models.Job, error) {
	r.mu.Lock()
	e, ok := r.jobs[jobID]
	if ok && e.job.Status == models.JobQueued {
		if e.starting {
			r.mu.Unlock()
			return nil, apperrors.NewInvalidState("cancel", "job", jobID, "Starting")
		}
		now := time.Now()
		e.job.Status = models.JobCancelled
		e.job.FinishedAt = &now
		job := e.job
		r.mu.Unlock()

		r.finished(job)
		out := snapshot(job)
		return &out, nil
	}
	r.mu.Unlock()

	return r.delegate(ctx, jobID, "cancel", (*controller.Session).Cancel)
}

func (r *JobRunner) delegate(ctx context.Context, jobID, op string, fn func(*controller.Session, context.Context, string) error) (*models.Job, error) {
	r.mu.RLock()
	e, ok := r.jobs[jobID]
	var connectionID string
	var status models.JobStatus
	if ok {
		connectionID, status = e.job.ConnectionID, e.job.Status
	}
	r.mu.RUnlock()

	if !ok {
		return nil, r.archived(jobID, op)
	}
	if status.IsTerminal() {
		return nil, apperrors.NewInvalidState(op, "job", jobID, string(status))
	}

	s, err := r.sessions.session(connectionID)
	if err != nil {
		return nil, err
	}
	if err := fn(s, ctx, jobID); err != nil {
		return nil, err
	}
	return r.GetJob(jobID)
}

// archived отклоняет операции над заданиями прошлых запусков процесса:
// их строк в памяти нет.
func (r *JobRunner) archived(jobID, op string) error {
	job, err := r.GetJob(jobID)
	if err != nil {
		return err
	}
	return apperrors.NewInvalidState(op, "job", jobID, string(job.Status))
}

// GetJob возвращает снимок задания. Задания прошлых запусков процесса
// читаются из хранилища.
func (r *JobRunner) GetJob(jobID string) (*models.Job, error) {
	r.mu.RLock()
	e, ok := r.jobs[jobID]
	var job models.Job
	if ok {
		job = snapshot(e.job)
	}
	r.mu.RUnlock()
	if ok {
		return &job, nil
	}

	rec, err := r.repo.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	job = recordToJob(*rec)
	return &job, nil
}

// ListJobs возвращает задания подключения в порядке создания.
func (r *JobRunner) ListJobs(connectionID string) ([]*models.Job, error) {
	seen := make(map[string]struct{})
	var out []*models.Job

	r.mu.RLock()
	for _, e := range r.jobs {
		if e.job.ConnectionID != connectionID {
			continue
		}
		job := snapshot(e.job)
		out = append(out, &job)
		seen[job.ID] = struct{}{}
	}
	r.mu.RUnlock()

	records, err := r.repo.ListJobs(connectionID)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if _, ok := seen[rec.JobID]; ok {
			continue
		}
		job := recordToJob(rec)
		out = append(out, &job)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// RecoverUnfinishedJobs помечает Failed задания, прерванные перезапуском
// процесса. Положение станка после перезапуска неизвестно.
func (r *JobRunner) RecoverUnfinishedJobs() (int, error) {
	records, err := r.repo.ListUnfinishedJobs()
	if err != nil {
		return 0, err
	}

	now := time.Now()
	for i := range records {
		rec := &records[i]
		detail := interruptedDetail(rec.JobID)
		rec.Status = string(models.JobFailed)
		rec.ErrorKind, rec.ErrorCode, rec.ErrorMessage = detail.Kind, detail.Code, detail.Message
		rec.FinishedAt = &now
		if err := r.repo.SaveJob(rec); err != nil {
			r.logger.Error("Failed to mark interrupted job", "job_id", rec.JobID, "error", err)
			continue
		}
		r.logger.Warn("Job interrupted by restart marked as failed", "job_id", rec.JobID, "cursor", rec.Cursor, "total", rec.Total)
	}
	return len(records), nil
}

// connectionRemoved отменяет задания из очереди удаленного подключения.
func (r *JobRunner) connectionRemoved(connectionID string) {
	var cancelled []models.Job
	now := time.Now()

	r.mu.Lock()
	for _, e := range r.jobs {
		if e.job.ConnectionID == connectionID && e.job.Status == models.JobQueued {
			e.job.Status = models.JobCancelled
			e.job.FinishedAt = &now
			cancelled = append(cancelled, e.job)
		}
	}
	last, tracked := r.states[connectionID]
	delete(r.states, connectionID)
	r.mu.Unlock()

	if tracked {
		r.metrics.ConnectionStateChanged(string(last), "")
	}
	for _, job := range cancelled {
		r.finished(job)
	}
}

// jobsOf возвращает снимки заданий подключения из памяти.
func (r *JobRunner) jobsOf(connectionID string) []*models.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Job
	for _, e := range r.jobs {
		if e.job.ConnectionID == connectionID {
			job := snapshot(e.job)
			out = append(out, &job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// finished сохраняет и публикует терминальный статус задания.
func (r *JobRunner) finished(job models.Job) {
	r.persist(job)
	r.publishStatus(job)
	r.metrics.JobFinished(string(job.Status))
	r.logger.Info("Job finished", "job_id", job.ID, "status", job.Status, "cursor", job.Cursor, "total", job.Total)
}

func (r *JobRunner) persist(job models.Job) {
	if err := r.repo.SaveJob(jobToRecord(job)); err != nil {
		r.logger.Error("Failed to persist job", "job_id", job.ID, "error", err)
	}
}

func (r *JobRunner) publishStatus(job models.Job) {
	r.bus.Publish(models.Event{
		Topic:        models.MachineTopic(job.ConnectionID),
		Type:         models.EventJobStatusChanged,
		ConnectionID: job.ConnectionID,
		JobID:        job.ID,
		State:        string(job.Status),
		Cursor:       job.Cursor,
		Total:        job.Total,
		Error:        job.Error,
	})
}

// NormalizeLines убирает комментарии ";" и "(...)", пробелы по краям и
// пустые строки. Элемент может содержать несколько строк; разделителем
// считается любой из "\r" и "\n", как и у контроллера.
func NormalizeLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, chunk := range lines {
		for _, line := range strings.FieldsFunc(chunk, isLineBreak) {
			if line = StripComments(line); line != "" {
				out = append(out, line)
			}
		}
	}
	return out
}

func isLineBreak(r rune) bool { return r == '\r' || r == '\n' }

// StripComments удаляет комментарии из одной строки G-кода.
func StripComments(line string) string {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	for {
		open := strings.IndexByte(line, '(')
		if open < 0 {
			break
		}
		end := strings.IndexByte(line[open:], ')')
		if end < 0 {
			line = line[:open]
			break
		}
		line = line[:open] + line[open+end+1:]
	}
	return strings.TrimSpace(line)
}

func snapshot(job models.Job) models.Job {
	job.Lines = nil
	if job.Error != nil {
		d := *job.Error
		job.Error = &d
	}
	return job
}

func interruptedDetail(jobID string) apperrors.Detail {
	return apperrors.Detail{
		Kind:    "ConnectionError",
		Code:    string(apperrors.ConnIOFailure),
		ID:      jobID,
		Message: "задание прервано перезапуском сервиса",
	}
}

func jobToRecord(job models.Job) *entities.JobRecord {
	rec := &entities.JobRecord{
		JobID:        job.ID,
		ConnectionID: job.ConnectionID,
		Total:        job.Total,
		Cursor:       job.Cursor,
		Status:       string(job.Status),
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		FinishedAt:   job.FinishedAt,
	}
	if job.Error != nil {
		rec.ErrorKind, rec.ErrorCode, rec.ErrorMessage = job.Error.Kind, job.Error.Code, job.Error.Message
	}
	return rec
}

func recordToJob(rec entities.JobRecord) models.Job {
	job := models.Job{
		ID:           rec.JobID,
		ConnectionID: rec.ConnectionID,
		Total:        rec.Total,
		Cursor:       rec.Cursor,
		Status:       models.JobStatus(rec.Status),
		CreatedAt:    rec.CreatedAt,
		StartedAt:    rec.StartedAt,
		FinishedAt:   rec.FinishedAt,
	}
	if rec.ErrorKind != "" {
		job.Error = &apperrors.Detail{Kind: rec.ErrorKind, Code: rec.ErrorCode, ID: rec.JobID, Message: rec.ErrorMessage}
	}
	return job
}
