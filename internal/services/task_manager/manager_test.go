package task_manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iwtcode/cncService/internal/adapters/repositories/memory"
	"github.com/iwtcode/cncService/internal/domain/entities"
	"github.com/iwtcode/cncService/internal/domain/models"
	"github.com/iwtcode/cncService/internal/metrics"
	"github.com/iwtcode/cncService/internal/middleware/logging"
	"github.com/iwtcode/cncService/internal/services/eventbus"
	apperrors "github.com/iwtcode/cncService/pkg/errors"
)

const (
	waitFor = 2 * time.Second
	tick    = time.Millisecond
)

type fixture struct {
	m       *Manager
	repo    *memory.Repository
	bus     *eventbus.Bus
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		repo:    memory.NewRepository(),
		bus:     eventbus.New(eventbus.Config{}, metrics.NewMetrics(), logging.NewNop()),
		metrics: metrics.NewMetrics(),
	}
	m, err := NewManager(cfg, f.repo, nil, f.bus, f.metrics, logging.NewNop())
	require.NoError(t, err)
	f.m = m
	t.Cleanup(m.Close)
	return f
}

func (f *fixture) enqueue(t *testing.T, taskType string, payload any) *models.Task {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	task, err := f.m.Enqueue(models.TaskSpec{Type: taskType, Payload: raw})
	require.NoError(t, err)
	return task
}

func (f *fixture) wait(t *testing.T, taskID string, status models.TaskStatus) *models.Task {
	t.Helper()
	var task *models.Task
	require.Eventually(t, func() bool {
		var err error
		task, err = f.m.Get(taskID)
		return err == nil && task.Status == status
	}, waitFor, tick, "task never reached %s", status)
	return task
}

// gate - обработчик, который ждет сигнала и игнорирует отмену.
type gate struct {
	started chan string
	release chan struct{}
}

func newGate() *gate {
	return &gate{started: make(chan string, 16), release: make(chan struct{})}
}

func (g *gate) handler(_ context.Context, payload json.RawMessage, _ *Reporter) (any, error) {
	g.started <- string(payload)
	<-g.release
	return "released", nil
}

func TestDigestTaskSucceeds(t *testing.T) {
	f := newFixture(t, Config{Workers: 2})

	task := f.enqueue(t, TypeDigest, "hello")
	assert.Equal(t, models.TaskQueued, task.Status)

	done := f.wait(t, task.ID, models.TaskSucceeded)
	assert.Equal(t, 100, done.Progress)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.FinishedAt)

	var res digestResult
	require.NoError(t, json.Unmarshal(done.Result, &res))
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", res.Digest)
	assert.Equal(t, 5, res.Bytes)

	rec, err := f.repo.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.TaskSucceeded), rec.Status)
	assert.Equal(t, Digest(done.Result), rec.ResultDigest)
}

func TestUnknownTaskTypeIsRejected(t *testing.T) {
	f := newFixture(t, Config{Workers: 1})

	_, err := f.m.Enqueue(models.TaskSpec{Type: "slice.stl"})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.BadRequestErrorCode, appErr.Code)
	assert.Empty(t, f.m.List())
}

func TestCancelQueuedTaskIsImmediate(t *testing.T) {
	f := newFixture(t, Config{Workers: 1})
	g := newGate()
	f.m.Register("gate", g.handler)

	busy := f.enqueue(t, "gate", 1)
	<-g.started
	queued := f.enqueue(t, "gate", 2)

	got, err := f.m.Cancel(queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCancelled, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, string(apperrors.TaskCancelled), got.Error.Code)
	assert.Nil(t, got.StartedAt)

	close(g.release)
	f.wait(t, busy.ID, models.TaskSucceeded)

	// отмененная задача не запускается
	select {
	case p := <-g.started:
		t.Fatalf("cancelled task started with payload %s", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCooperativeCancel(t *testing.T) {
	f := newFixture(t, Config{Workers: 1, CancelGrace: time.Second})

	task := f.enqueue(t, TypeSleep, sleepPayload{MS: 10_000})
	f.wait(t, task.ID, models.TaskRunning)

	got, err := f.m.Cancel(task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskRunning, got.Status)

	done := f.wait(t, task.ID, models.TaskCancelled)
	require.NotNil(t, done.Error)
	assert.Equal(t, "TaskError", done.Error.Kind)
	assert.Equal(t, string(apperrors.TaskCancelled), done.Error.Code)
}

func TestUncooperativeTaskIsForceTerminated(t *testing.T) {
	f := newFixture(t, Config{Workers: 1, CancelGrace: 50 * time.Millisecond})
	g := newGate()
	f.m.Register("gate", g.handler)

	task := f.enqueue(t, "gate", 1)
	<-g.started

	_, err := f.m.Cancel(task.ID)
	require.NoError(t, err)

	failed := f.wait(t, task.ID, models.TaskFailed)
	require.NotNil(t, failed.Error)
	assert.Equal(t, string(apperrors.TaskTimeout), failed.Error.Code)

	close(g.release)
	time.Sleep(20 * time.Millisecond)

	got, err := f.m.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, got.Status, "late result must be discarded")
	assert.Nil(t, got.Result)
}

func TestForceTerminatedTaskDoesNotStarvePool(t *testing.T) {
	f := newFixture(t, Config{Workers: 1, CancelGrace: 50 * time.Millisecond})
	g := newGate()
	f.m.Register("gate", g.handler)

	// каждый брошенный обработчик держит воркер, но очередь продолжает работать
	for i := 0; i < 3; i++ {
		stuck := f.enqueue(t, "gate", i)
		<-g.started
		_, err := f.m.Cancel(stuck.ID)
		require.NoError(t, err)
		f.wait(t, stuck.ID, models.TaskFailed)

		next := f.enqueue(t, TypeDigest, "after")
		f.wait(t, next.ID, models.TaskSucceeded)
	}
	assert.Equal(t, 4, f.m.pool.Cap())
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.TasksAbandoned))

	close(g.release)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.TasksAbandoned) == 0
	}, waitFor, tick)
	assert.Equal(t, 1, f.m.pool.Cap())

	task := f.enqueue(t, TypeDigest, "reclaimed")
	f.wait(t, task.ID, models.TaskSucceeded)
}

func TestPanicBecomesExecutionFailure(t *testing.T) {
	f := newFixture(t, Config{Workers: 1})
	f.m.Register("boom", func(context.Context, json.RawMessage, *Reporter) (any, error) {
		panic("boom")
	})
	f.m.Register("fail", func(context.Context, json.RawMessage, *Reporter) (any, error) {
		return nil, errors.New("bad input")
	})

	boom := f.enqueue(t, "boom", nil)
	failed := f.wait(t, boom.ID, models.TaskFailed)
	assert.Equal(t, string(apperrors.TaskExecutionFailure), failed.Error.Code)
	assert.Contains(t, failed.Error.Message, "boom")

	fail := f.enqueue(t, "fail", nil)
	failed = f.wait(t, fail.ID, models.TaskFailed)
	assert.Equal(t, string(apperrors.TaskExecutionFailure), failed.Error.Code)

	ok := f.enqueue(t, TypeDigest, "x")
	f.wait(t, ok.ID, models.TaskSucceeded)
}

func TestProgressIsMonotonicAndEndsWithCompletion(t *testing.T) {
	f := newFixture(t, Config{Workers: 1})
	client := f.bus.NewClient("ui", 64)
	f.bus.Subscribe(client, models.TopicTasks)

	var leaked *Reporter
	f.m.Register("steps", func(_ context.Context, _ json.RawMessage, r *Reporter) (any, error) {
		for _, p := range []int{10, 50, 30, 50, 80, 250} {
			r.Report(p)
		}
		leaked = r
		return "done", nil
	})

	task := f.enqueue(t, "steps", nil)
	f.wait(t, task.ID, models.TaskSucceeded)
	leaked.Report(100)

	var progress []int
	var statuses []string
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	for len(statuses) == 0 || statuses[len(statuses)-1] != string(models.TaskSucceeded) {
		msg, err := client.Receive(ctx)
		require.NoError(t, err)
		switch msg.Event.Type {
		case models.EventTaskProgress:
			progress = append(progress, msg.Event.Progress)
		case models.EventTaskStatusChanged:
			statuses = append(statuses, msg.Event.State)
		}
	}

	assert.Equal(t, []int{10, 50, 80, 100}, progress)
	assert.Equal(t, []string{"Queued", "Running", "Succeeded"}, statuses)
}

func TestCancelFinishedTaskIsNoop(t *testing.T) {
	f := newFixture(t, Config{Workers: 1})
	task := f.enqueue(t, TypeDigest, "x")
	f.wait(t, task.ID, models.TaskSucceeded)

	got, err := f.m.Cancel(task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskSucceeded, got.Status)

	_, err = f.m.Cancel("missing")
	require.ErrorIs(t, err, apperrors.ErrDataNotFound)
}

func TestWorkersAreBounded(t *testing.T) {
	const workers, total = 2, 8
	f := newFixture(t, Config{Workers: workers})

	var running, peak atomic.Int32
	f.m.Register("busy", func(context.Context, json.RawMessage, *Reporter) (any, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return nil, nil
	})

	ids := make([]string, total)
	for i := range ids {
		ids[i] = f.enqueue(t, "busy", i).ID
	}
	for _, id := range ids {
		f.wait(t, id, models.TaskSucceeded)
	}
	assert.LessOrEqual(t, peak.Load(), int32(workers))
}

func TestTasksStartInEnqueueOrder(t *testing.T) {
	f := newFixture(t, Config{Workers: 1})

	var mu sync.Mutex
	var order []string
	f.m.Register("record", func(_ context.Context, payload json.RawMessage, _ *Reporter) (any, error) {
		mu.Lock()
		order = append(order, string(payload))
		mu.Unlock()
		return nil, nil
	})

	var last string
	var want []string
	for i := 0; i < 20; i++ {
		last = f.enqueue(t, "record", i).ID
		want = append(want, fmt.Sprint(i))
	}
	f.wait(t, last, models.TaskSucceeded)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, order)
	assert.Len(t, f.m.List(), 20)
}

func TestRecoverUnfinishedTasks(t *testing.T) {
	f := newFixture(t, Config{Workers: 1})
	require.NoError(t, f.repo.SaveTask(&entities.TaskRecord{TaskID: "t-old", Type: TypeSleep, Status: "Running", Progress: 40}))

	n, err := f.m.RecoverUnfinished()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	task, err := f.m.Get("t-old")
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, task.Status)
	assert.Equal(t, 40, task.Progress)
	require.NotNil(t, task.Error)
}

func TestClosedManagerRejectsTasks(t *testing.T) {
	f := newFixture(t, Config{Workers: 1, CancelGrace: 100 * time.Millisecond})
	running := f.enqueue(t, TypeSleep, sleepPayload{MS: 10_000})
	f.wait(t, running.ID, models.TaskRunning)

	f.m.Close()
	f.wait(t, running.ID, models.TaskCancelled)

	_, err := f.m.Enqueue(models.TaskSpec{Type: TypeDigest})
	require.ErrorIs(t, err, apperrors.ErrInvalidState)
}
