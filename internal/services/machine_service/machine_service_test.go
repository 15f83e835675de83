package machine_service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iwtcode/cncService/internal/adapters/repositories/memory"
	"github.com/iwtcode/cncService/internal/config"
	"github.com/iwtcode/cncService/internal/domain/entities"
	"github.com/iwtcode/cncService/internal/domain/models"
	"github.com/iwtcode/cncService/internal/metrics"
	"github.com/iwtcode/cncService/internal/middleware/logging"
	"github.com/iwtcode/cncService/internal/services/eventbus"
	"github.com/iwtcode/cncService/internal/testutil"
	apperrors "github.com/iwtcode/cncService/pkg/errors"
)

const (
	waitFor = 2 * time.Second
	tick    = time.Millisecond
)

type fixture struct {
	svc    *machineService
	opener *testutil.FakeOpener
	repo   *memory.Repository
	bus    *eventbus.Bus
}

func newFixture(t *testing.T, responder testutil.Responder) *fixture {
	t.Helper()

	cfg := config.ControllerConfig{
		ConnectTimeout: time.Second,
		DefaultBaud:    115200,
		DefaultDialect: "grbl",
		DrainTimeout:   time.Second,
		CommandTimeout: time.Second,
	}
	f := &fixture{
		opener: &testutil.FakeOpener{Responder: responder},
		repo:   memory.NewRepository(),
		bus:    eventbus.New(eventbus.Config{}, metrics.NewMetrics(), logging.NewNop()),
	}
	f.svc = New(cfg, f.opener, f.repo, f.bus, metrics.NewMetrics(), logging.NewNop())
	t.Cleanup(f.svc.Close)
	return f
}

func (f *fixture) connect(t *testing.T, address string) *models.ConnectionInfo {
	t.Helper()
	info, err := f.svc.CreateConnection(context.Background(), models.ConnectionRequest{Address: address})
	require.NoError(t, err)
	return info
}

func (f *fixture) waitJob(t *testing.T, jobID string, status models.JobStatus) *models.Job {
	t.Helper()
	var job *models.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = f.svc.GetJob(jobID)
		return err == nil && job.Status == status
	}, waitFor, tick, "job never reached %s", status)
	return job
}

func program(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("G1 X%d", i+1)
	}
	return lines
}

func TestFiveLineJobEndToEnd(t *testing.T) {
	f := newFixture(t, testutil.AlwaysOK)
	conn := f.connect(t, "/dev/ttyFAKE0")
	assert.Equal(t, models.StateIdle, conn.State)
	assert.Equal(t, "grbl", conn.Dialect)
	assert.Equal(t, 115200, conn.BaudRate)

	client := f.bus.NewClient("ui", 64)
	f.bus.Subscribe(client, models.MachineTopic(conn.ConnectionID))

	job, err := f.svc.SubmitJob(conn.ConnectionID, program(5))
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, job.Status)

	_, err = f.svc.StartJob(context.Background(), job.ID)
	require.NoError(t, err)
	done := f.waitJob(t, job.ID, models.JobCompleted)
	assert.Equal(t, 5, done.Cursor)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.FinishedAt)

	var jobEvents []models.Event
	var lastSeq uint64
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	for len(jobEvents) == 0 || jobEvents[len(jobEvents)-1].State != string(models.JobCompleted) {
		msg, err := client.Receive(ctx)
		require.NoError(t, err)
		require.Equal(t, models.ServerEvent, msg.Type)
		require.Greater(t, msg.Event.Seq, lastSeq)
		lastSeq = msg.Event.Seq
		if msg.Event.JobID == job.ID {
			jobEvents = append(jobEvents, *msg.Event)
		}
	}

	require.Len(t, jobEvents, 8)
	assert.Equal(t, string(models.JobQueued), jobEvents[0].State)
	assert.Equal(t, string(models.JobRunning), jobEvents[1].State)
	for i := 0; i < 5; i++ {
		ev := jobEvents[2+i]
		assert.Equal(t, models.EventJobProgress, ev.Type)
		assert.Equal(t, i+1, ev.Cursor)
		assert.Equal(t, 5, ev.Total)
	}
	assert.Equal(t, models.EventJobStatusChanged, jobEvents[7].Type)
	assert.Equal(t, 5, jobEvents[7].Cursor)

	rec, err := f.repo.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.JobCompleted), rec.Status)
}

func TestSecondStartIsRejectedWithoutSideEffects(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.connect(t, "/dev/ttyFAKE0")

	first, err := f.svc.SubmitJob(conn.ConnectionID, program(20))
	require.NoError(t, err)
	second, err := f.svc.SubmitJob(conn.ConnectionID, program(3))
	require.NoError(t, err)

	_, err = f.svc.StartJob(context.Background(), first.ID)
	require.NoError(t, err)

	_, err = f.svc.StartJob(context.Background(), second.ID)
	require.ErrorIs(t, err, apperrors.ErrInvalidState)

	got, err := f.svc.GetJob(second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, got.Status)

	info, err := f.svc.GetConnection(conn.ConnectionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateRunning, info.State)
	assert.Equal(t, first.ID, info.ActiveJobID)

	_, err = f.svc.StartJob(context.Background(), first.ID)
	require.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestPauseResumeCancelDelegateToSession(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.connect(t, "/dev/ttyFAKE0")
	job, err := f.svc.SubmitJob(conn.ConnectionID, program(20))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = f.svc.PauseJob(ctx, job.ID)
	require.ErrorIs(t, err, apperrors.ErrInvalidState)

	_, err = f.svc.StartJob(ctx, job.ID)
	require.NoError(t, err)

	paused, err := f.svc.PauseJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPaused, paused.Status)

	resumed, err := f.svc.ResumeJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobRunning, resumed.Status)

	cancelled, err := f.svc.CancelJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, cancelled.Status)

	_, err = f.svc.CancelJob(ctx, job.ID)
	require.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestCancelQueuedJob(t *testing.T) {
	f := newFixture(t, testutil.AlwaysOK)
	conn := f.connect(t, "/dev/ttyFAKE0")
	job, err := f.svc.SubmitJob(conn.ConnectionID, program(2))
	require.NoError(t, err)

	got, err := f.svc.CancelJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, got.Status)

	_, err = f.svc.StartJob(context.Background(), job.ID)
	require.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestTransportFailureFailsJobUntilReconnect(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.connect(t, "/dev/ttyFAKE0")
	job, err := f.svc.SubmitJob(conn.ConnectionID, program(20))
	require.NoError(t, err)
	_, err = f.svc.StartJob(context.Background(), job.ID)
	require.NoError(t, err)

	controller := f.opener.Controller()
	require.Eventually(t, func() bool { return controller.ReceivedCount() > 0 }, waitFor, tick)
	require.NoError(t, controller.Ack(1))
	require.NoError(t, controller.Close())

	failed := f.waitJob(t, job.ID, models.JobFailed)
	require.NotNil(t, failed.Error)
	assert.Equal(t, "ConnectionError", failed.Error.Kind)
	assert.Equal(t, string(apperrors.ConnIOFailure), failed.Error.Code)
	assert.Equal(t, 1, failed.Cursor)

	info, err := f.svc.GetConnection(conn.ConnectionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateDisconnected, info.State)
	require.NotNil(t, info.LastError)

	next, err := f.svc.SubmitJob(conn.ConnectionID, program(1))
	require.NoError(t, err)
	_, err = f.svc.StartJob(context.Background(), next.ID)
	require.ErrorIs(t, err, apperrors.ErrInvalidState)

	info, err = f.svc.Reconnect(context.Background(), conn.ConnectionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, info.State)
	assert.Equal(t, 2, f.opener.Opened())
}

func TestDeleteConnectionCancelsJobs(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.connect(t, "/dev/ttyFAKE0")
	active, err := f.svc.SubmitJob(conn.ConnectionID, program(20))
	require.NoError(t, err)
	queued, err := f.svc.SubmitJob(conn.ConnectionID, program(2))
	require.NoError(t, err)
	_, err = f.svc.StartJob(context.Background(), active.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteConnection(conn.ConnectionID))

	f.waitJob(t, active.ID, models.JobCancelled)
	f.waitJob(t, queued.ID, models.JobCancelled)

	_, err = f.svc.GetConnection(conn.ConnectionID)
	require.ErrorIs(t, err, apperrors.ErrDataNotFound)
	_, err = f.repo.GetByID(conn.ConnectionID)
	require.ErrorIs(t, err, apperrors.ErrDataNotFound)
	require.ErrorIs(t, f.svc.DeleteConnection(conn.ConnectionID), apperrors.ErrDataNotFound)
}

func TestDuplicateAddressIsRejected(t *testing.T) {
	f := newFixture(t, testutil.AlwaysOK)
	f.connect(t, "/dev/ttyFAKE0")

	_, err := f.svc.CreateConnection(context.Background(), models.ConnectionRequest{Address: "/dev/ttyFAKE0"})
	require.ErrorIs(t, err, apperrors.ErrInvalidState)
	assert.Equal(t, 1, f.opener.Opened())
	assert.Len(t, f.svc.GetAllConnections(), 1)
}

func TestCreateConnectionValidatesRequest(t *testing.T) {
	f := newFixture(t, testutil.AlwaysOK)
	ctx := context.Background()

	for _, req := range []models.ConnectionRequest{
		{Address: ""},
		{Address: "/dev/ttyFAKE0", Kind: "usb"},
		{Address: "/dev/ttyFAKE0", Dialect: "heidenhain"},
	} {
		_, err := f.svc.CreateConnection(ctx, req)
		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr, "request %+v", req)
		assert.Equal(t, apperrors.BadRequestErrorCode, appErr.Code)
	}
	assert.Zero(t, f.opener.Opened())
}

func TestOpenFailureIsNotRegistered(t *testing.T) {
	f := newFixture(t, nil)
	f.opener.Err = apperrors.NewConnectionError(apperrors.ConnTimeout, "", "10.0.0.1:23", context.DeadlineExceeded)

	_, err := f.svc.CreateConnection(context.Background(), models.ConnectionRequest{Kind: models.TransportTCP, Address: "10.0.0.1:23"})
	var connErr *apperrors.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, apperrors.ConnTimeout, connErr.Kind)
	assert.Empty(t, f.svc.GetAllConnections())
}

func TestRestoreKeepsUnreachableConnectionDisconnected(t *testing.T) {
	f := newFixture(t, testutil.AlwaysOK)
	meta := entities.MachineConnection{ConnectionID: "m1", Kind: "serial", Address: "/dev/ttyFAKE1", Dialect: "grbl", CreatedAt: time.Now()}

	f.opener.Err = apperrors.NewConnectionError(apperrors.ConnNotFound, "", meta.Address, nil)
	info, err := f.svc.RestoreConnection(context.Background(), meta)
	require.Error(t, err)
	assert.Equal(t, models.StateDisconnected, info.State)

	f.opener.Err = nil
	info, err = f.svc.Reconnect(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, info.State)
}

func TestSendCommandReturnsReply(t *testing.T) {
	f := newFixture(t, func(line string) []string {
		if line == "$X" {
			return []string{"[MSG:Caution: Unlocked]", "ok"}
		}
		return []string{"error:20"}
	})
	conn := f.connect(t, "/dev/ttyFAKE0")
	ctx := context.Background()

	reply, err := f.svc.SendCommand(ctx, conn.ConnectionID, " $X ")
	require.NoError(t, err)
	assert.True(t, reply.OK)
	assert.Equal(t, "$X", reply.Line)

	_, err = f.svc.SendCommand(ctx, conn.ConnectionID, "G0 X1\nG0 X2")
	require.Error(t, err)

	_, err = f.svc.SendCommand(ctx, "missing", "$X")
	require.ErrorIs(t, err, apperrors.ErrDataNotFound)
}

func TestRecoverUnfinishedJobsMarksFailed(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Now()
	require.NoError(t, f.repo.SaveJob(&entities.JobRecord{JobID: "old", ConnectionID: "m1", Total: 10, Cursor: 4, Status: "Running", CreatedAt: now}))
	require.NoError(t, f.repo.SaveJob(&entities.JobRecord{JobID: "done", ConnectionID: "m1", Total: 1, Cursor: 1, Status: "Completed", CreatedAt: now}))

	n, err := f.svc.RecoverUnfinishedJobs()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err := f.svc.GetJob("old")
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Equal(t, 4, job.Cursor)
	require.NotNil(t, job.Error)

	jobs, err := f.svc.ListJobs("m1")
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	_, err = f.svc.StartJob(context.Background(), "old")
	require.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestSubmitRejectsEmptyProgramAndUnknownConnection(t *testing.T) {
	f := newFixture(t, testutil.AlwaysOK)
	conn := f.connect(t, "/dev/ttyFAKE0")

	_, err := f.svc.SubmitJob(conn.ConnectionID, []string{"; only a comment", "   ", "(setup)"})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)

	_, err = f.svc.SubmitJob("missing", program(1))
	require.ErrorIs(t, err, apperrors.ErrDataNotFound)
}

func TestSnapshotCarriesConnectionAndJobs(t *testing.T) {
	f := newFixture(t, testutil.AlwaysOK)
	conn := f.connect(t, "/dev/ttyFAKE0")
	_, err := f.svc.SubmitJob(conn.ConnectionID, program(2))
	require.NoError(t, err)

	snap := f.svc.Snapshot(conn.ConnectionID)
	require.NotNil(t, snap.Connection)
	assert.Equal(t, conn.ConnectionID, snap.Connection.ConnectionID)
	require.Len(t, snap.Jobs, 1)
	assert.Nil(t, snap.Jobs[0].Lines)
}

func TestNormalizeLines(t *testing.T) {
	got := NormalizeLines([]string{
		"G21 ; millimeters",
		"(header comment)",
		"G0 X1 (rapid) Y2",
		"",
		"M3 S1000\nG1 X5\r",
		"G1 (unterminated",
		"G0 Z5\rG0 Z6\r\nG0 Z7",
	})
	assert.Equal(t, []string{"G21", "G0 X1  Y2", "M3 S1000", "G1 X5", "G1", "G0 Z5", "G0 Z6", "G0 Z7"}, got)
	assert.Equal(t, "", StripComments(strings.Repeat(" ", 4)))
}

func TestCarriageReturnSeparatesJobLines(t *testing.T) {
	f := newFixture(t, nil)
	info, err := f.svc.CreateConnection(context.Background(), models.ConnectionRequest{Address: "/dev/ttyFAKE0", Window: 1})
	require.NoError(t, err)

	job, err := f.svc.SubmitJob(info.ConnectionID, []string{"G1 X1\rG1 X2", "G1 X3"})
	require.NoError(t, err)
	assert.Equal(t, 3, job.Total)

	single, err := f.svc.SubmitJob(info.ConnectionID, []string{"G1 X1\rG1 X2\rG1 X3"})
	require.NoError(t, err)
	assert.Equal(t, 3, single.Total)
	_, err = f.svc.CancelJob(context.Background(), single.ID)
	require.NoError(t, err)

	_, err = f.svc.StartJob(context.Background(), job.ID)
	require.NoError(t, err)

	controller := f.opener.Controller()
	for i := 1; i <= 3; i++ {
		require.Eventually(t, func() bool { return controller.ReceivedCount() == i }, waitFor, tick)
		got, err := f.svc.GetJob(job.ID)
		require.NoError(t, err)
		assert.Equal(t, i-1, got.Cursor, "cursor moved before line %d was acknowledged", i)
		assert.Equal(t, models.JobRunning, got.Status)
		assert.Equal(t, 1, controller.Outstanding())
		require.NoError(t, controller.Ack(1))
	}

	done := f.waitJob(t, job.ID, models.JobCompleted)
	assert.Equal(t, 3, done.Cursor)
	assert.Equal(t, []string{"G1 X1", "G1 X2", "G1 X3"}, controller.Received())
}
