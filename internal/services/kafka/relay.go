package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/iwtcode/cncService/internal/domain/models"
	"github.com/iwtcode/cncService/internal/interfaces"
	"github.com/iwtcode/cncService/internal/middleware/logging"
	"github.com/iwtcode/cncService/internal/services/eventbus"
)

const relayQueue = 4096

// Relay зеркалирует все события шины в Kafka через подписку "*".
// При переполнении очереди релей переподписывается, пропущенные события
// теряются и отмечаются в логе.
type Relay struct {
	bus      *eventbus.Bus
	producer interfaces.KafkaService
	logger   *logging.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRelay(bus *eventbus.Bus, producer interfaces.KafkaService, logger *logging.Logger) *Relay {
	return &Relay{
		bus:      bus,
		producer: producer,
		logger:   logger.WithPrefix("KAFKA"),
	}
}

func (r *Relay) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	client := r.bus.NewClient("kafka-relay", relayQueue)
	r.bus.Subscribe(client, models.TopicAll)

	go r.run(ctx, client)
	r.logger.Info("Kafka relay started")
}

func (r *Relay) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.logger.Info("Kafka relay stopped")
}

func (r *Relay) run(ctx context.Context, client *eventbus.Client) {
	defer close(r.done)
	defer r.bus.RemoveClient(client)

	for {
		msg, err := client.Receive(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				r.logger.Error("Relay receive failed", "error", err)
			}
			return
		}

		switch msg.Type {
		case models.ServerDropped:
			r.logger.Warn("Relay fell behind, events were skipped", "topic", msg.Topic, "last_seq", msg.Seq)
			r.bus.Subscribe(client, models.TopicAll)
		case models.ServerEvent:
			r.produce(ctx, msg.Event)
		}
	}
}

func (r *Relay) produce(ctx context.Context, ev *models.Event) {
	value, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("Failed to serialize event for Kafka", "topic", ev.Topic, "seq", ev.Seq, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.producer.Produce(ctx, []byte(ev.Topic), value); err != nil {
		r.logger.Error("Failed to send event to Kafka", "topic", ev.Topic, "seq", ev.Seq, "error", err)
	}
}
