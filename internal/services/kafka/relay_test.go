package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iwtcode/cncService/internal/domain/models"
	"github.com/iwtcode/cncService/internal/metrics"
	"github.com/iwtcode/cncService/internal/middleware/logging"
	"github.com/iwtcode/cncService/internal/services/eventbus"
)

type message struct {
	key   string
	value []byte
}

type recordingProducer struct {
	mu       sync.Mutex
	messages []message
}

func (p *recordingProducer) Produce(_ context.Context, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message{string(key), value})
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func (p *recordingProducer) snapshot() []message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]message(nil), p.messages...)
}

func TestRelayMirrorsEveryTopicKeyedByTopic(t *testing.T) {
	bus := eventbus.New(eventbus.Config{}, metrics.NewMetrics(), logging.NewNop())
	producer := &recordingProducer{}
	relay := NewRelay(bus, producer, logging.NewNop())
	relay.Start()

	bus.Publish(models.Event{Topic: models.MachineTopic("m1"), Type: models.EventJobProgress, JobID: "j1", Cursor: 1})
	bus.Publish(models.Event{Topic: models.TopicTasks, Type: models.EventTaskProgress, TaskID: "t1", Progress: 50})
	bus.Publish(models.Event{Topic: models.MachineTopic("m1"), Type: models.EventJobProgress, JobID: "j1", Cursor: 2})

	require.Eventually(t, func() bool { return len(producer.snapshot()) == 3 }, 2*time.Second, time.Millisecond)
	relay.Stop()

	msgs := producer.snapshot()
	assert.Equal(t, "machine:m1", msgs[0].key)
	assert.Equal(t, "tasks", msgs[1].key)

	var ev models.Event
	require.NoError(t, json.Unmarshal(msgs[2].value, &ev))
	assert.Equal(t, uint64(2), ev.Seq)
	assert.Equal(t, 2, ev.Cursor)
	assert.Zero(t, bus.ClientCount())
}
