package eventbus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iwtcode/cncService/internal/domain/models"
	"github.com/iwtcode/cncService/internal/metrics"
	"github.com/iwtcode/cncService/internal/middleware/logging"
)

const machineTopic = "machine:m1"

func newTestBus(retention int) *Bus {
	return New(Config{Retention: retention, ClientQueue: 64}, metrics.NewMetrics(), logging.NewNop())
}

func progress(topic string, cursor int) models.Event {
	return models.Event{Topic: topic, Type: models.EventJobProgress, JobID: "job-1", Cursor: cursor}
}

func receive(t *testing.T, c *Client) models.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := c.Receive(ctx)
	require.NoError(t, err)
	return msg
}

func TestPublishAssignsPerTopicSequence(t *testing.T) {
	b := newTestBus(16)

	e1 := b.Publish(progress(machineTopic, 1))
	e2 := b.Publish(progress(machineTopic, 2))
	other := b.Publish(models.Event{Topic: models.TopicTasks, Type: models.EventTaskProgress})

	assert.Equal(t, uint64(1), e1.Seq)
	assert.Equal(t, uint64(2), e2.Seq)
	assert.Equal(t, uint64(1), other.Seq)
	assert.False(t, e1.Timestamp.IsZero())
	assert.Equal(t, uint64(2), b.LastSeq(machineTopic))
}

func TestSlowClientIsDroppedWithoutBlockingOthers(t *testing.T) {
	const total = 1000
	b := newTestBus(total)

	slow := b.NewClient("slow", 8)
	b.Subscribe(slow, machineTopic)

	fast := make([]*Client, 4)
	var wg sync.WaitGroup
	results := make([][]uint64, len(fast))
	for i := range fast {
		fast[i] = b.NewClient(fmt.Sprintf("fast-%d", i), total+1)
		b.Subscribe(fast[i], machineTopic)

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for len(results[i]) < total {
				msg, err := fast[i].Receive(ctx)
				if err != nil {
					return
				}
				results[i] = append(results[i], msg.Event.Seq)
			}
		}(i)
	}

	published := make(chan struct{})
	go func() {
		defer close(published)
		for i := 1; i <= total; i++ {
			b.Publish(progress(machineTopic, i))
		}
	}()

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing blocked on a slow client")
	}
	wg.Wait()

	for i := range fast {
		require.Len(t, results[i], total, "client %d", i)
		for j, seq := range results[i] {
			require.Equal(t, uint64(j+1), seq, "client %d received out of order", i)
		}
	}

	lastSeq, dropped := slow.Dropped(machineTopic)
	require.True(t, dropped)
	assert.Equal(t, uint64(8), lastSeq)

	for i := 1; i <= 8; i++ {
		msg := receive(t, slow)
		require.Equal(t, models.ServerEvent, msg.Type)
		assert.Equal(t, uint64(i), msg.Event.Seq)
	}
	notice := receive(t, slow)
	assert.Equal(t, models.ServerDropped, notice.Type)
	assert.Equal(t, machineTopic, notice.Topic)
	assert.Equal(t, uint64(8), notice.Seq)
}

func TestResyncReplaysMissedEventsInOrder(t *testing.T) {
	b := newTestBus(32)
	c := b.NewClient("c", 2)
	b.Subscribe(c, machineTopic)

	for i := 1; i <= 5; i++ {
		b.Publish(progress(machineTopic, i))
	}

	assert.Equal(t, uint64(1), receive(t, c).Event.Seq)
	assert.Equal(t, uint64(2), receive(t, c).Event.Seq)
	notice := receive(t, c)
	require.Equal(t, models.ServerDropped, notice.Type)
	require.Equal(t, uint64(2), notice.Seq)

	require.NoError(t, b.Resync(c, machineTopic, notice.Seq))
	b.Publish(progress(machineTopic, 6))

	for want := uint64(3); want <= 6; want++ {
		msg := receive(t, c)
		require.Equal(t, models.ServerEvent, msg.Type)
		assert.Equal(t, want, msg.Event.Seq)
	}
}

func TestResyncOutsideRetentionIsUnavailable(t *testing.T) {
	b := newTestBus(4)
	c := b.NewClient("c", 16)

	for i := 1; i <= 10; i++ {
		b.Publish(progress(machineTopic, i))
	}

	err := b.Resync(c, machineTopic, 2)
	var unavailable *ReplayUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, uint64(7), unavailable.Oldest)
	assert.Empty(t, c.Topics(), "failed resync must not subscribe")

	require.NoError(t, b.Resync(c, machineTopic, 6))
	for want := uint64(7); want <= 10; want++ {
		assert.Equal(t, want, receive(t, c).Event.Seq)
	}

	err = b.Resync(c, machineTopic, 99)
	require.ErrorAs(t, err, &unavailable)
}

func TestWildcardReceivesEveryTopicInOrder(t *testing.T) {
	b := newTestBus(64)
	tap := b.NewClient("tap", 4096)
	b.Subscribe(tap, models.TopicAll)

	const topics, perTopic = 8, 100
	var wg sync.WaitGroup
	for i := 0; i < topics; i++ {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			for j := 1; j <= perTopic; j++ {
				b.Publish(progress(topic, j))
			}
		}(models.MachineTopic(fmt.Sprint(i)))
	}
	wg.Wait()

	last := make(map[string]uint64)
	for i := 0; i < topics*perTopic; i++ {
		msg := receive(t, tap)
		require.Equal(t, models.ServerEvent, msg.Type)
		ev := msg.Event
		require.Equal(t, last[ev.Topic]+1, ev.Seq, "topic %s out of order", ev.Topic)
		last[ev.Topic] = ev.Seq
	}
	assert.Len(t, last, topics)
}

func TestSnapshotPrecedesLaterEvents(t *testing.T) {
	b := newTestBus(16)
	for i := 1; i <= 3; i++ {
		b.Publish(progress(machineTopic, i))
	}

	c := b.NewClient("c", 16)
	seq := b.Snapshot(c, machineTopic, func() *models.TopicSnapshot {
		return &models.TopicSnapshot{Jobs: []*models.Job{{ID: "job-1", Cursor: 3}}}
	})
	assert.Equal(t, uint64(3), seq)
	b.Publish(progress(machineTopic, 4))

	snap := receive(t, c)
	require.Equal(t, models.ServerSnapshot, snap.Type)
	assert.Equal(t, uint64(3), snap.Seq)
	require.Len(t, snap.Snapshot.Jobs, 1)

	next := receive(t, c)
	assert.Equal(t, uint64(4), next.Event.Seq)
}

func TestRemoveClientClosesReceive(t *testing.T) {
	b := newTestBus(16)
	c := b.NewClient("", 4)
	require.NotEmpty(t, c.ID)
	b.Subscribe(c, machineTopic, models.TopicAll)
	assert.Equal(t, 1, b.ClientCount())

	b.RemoveClient(c)
	assert.Equal(t, 0, b.ClientCount())

	_, err := c.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClientClosed)

	b.Publish(progress(machineTopic, 1))
	assert.Empty(t, c.Topics())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBus(16)
	c := b.NewClient("c", 4)
	b.Subscribe(c, machineTopic)
	b.Unsubscribe(c, machineTopic)
	b.Publish(progress(machineTopic, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRingKeepsNewestEvents(t *testing.T) {
	r := newRing(3)
	assert.Equal(t, uint64(0), r.oldest())

	for i := uint64(1); i <= 5; i++ {
		r.push(models.Event{Seq: i})
	}
	assert.Equal(t, uint64(3), r.oldest())

	got := r.since(3)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(4), got[0].Seq)
	assert.Equal(t, uint64(5), got[1].Seq)
}
