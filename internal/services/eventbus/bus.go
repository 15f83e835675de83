// Package eventbus раздает события состояния и прогресса любому числу
// подписчиков. Внутри топика события упорядочены по Seq; медленный
// подписчик никогда не блокирует публикацию и остальных подписчиков.
package eventbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iwtcode/cncService/internal/domain/models"
	"github.com/iwtcode/cncService/internal/metrics"
	"github.com/iwtcode/cncService/internal/middleware/logging"
)

const (
	DefaultRetention   = 1024
	DefaultClientQueue = 256
)

type Config struct {
	Retention   int // событий на топик для повторной доставки
	ClientQueue int // размер очереди клиента по умолчанию
}

// ReplayUnavailableError - запрошенный Seq старше окна хранения. Клиент
// должен запросить снимок состояния.
type ReplayUnavailableError struct {
	Topic  string
	Since  uint64
	Oldest uint64
}

func (e *ReplayUnavailableError) Error() string {
	return fmt.Sprintf("повтор топика '%s' с seq %d недоступен, самое старое событие %d", e.Topic, e.Since, e.Oldest)
}

type topic struct {
	mu          sync.Mutex
	name        string
	seq         uint64
	ring        *ring
	subscribers map[*Client]struct{}
}

// Bus - шина событий. Блокировки взяты по топикам, глобальная блокировка
// защищает только справочники топиков и клиентов.
type Bus struct {
	cfg     Config
	metrics *metrics.Metrics
	logger  *logging.Logger

	mu      sync.RWMutex
	topics  map[string]*topic
	clients map[string]*Client

	wmu      sync.RWMutex
	wildcard map[*Client]struct{}
}

func New(cfg Config, m *metrics.Metrics, logger *logging.Logger) *Bus {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.ClientQueue <= 0 {
		cfg.ClientQueue = DefaultClientQueue
	}
	return &Bus{
		cfg:      cfg,
		metrics:  m,
		logger:   logger.WithPrefix("BUS"),
		topics:   make(map[string]*topic),
		clients:  make(map[string]*Client),
		wildcard: make(map[*Client]struct{}),
	}
}

func (b *Bus) topic(name string) *topic {
	b.mu.RLock()
	t, ok := b.topics[name]
	b.mu.RUnlock()
	if ok {
		return t
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok = b.topics[name]; !ok {
		t = &topic{name: name, ring: newRing(b.cfg.Retention), subscribers: make(map[*Client]struct{})}
		b.topics[name] = t
	}
	return t
}

// NewClient регистрирует подписчика. queueSize <= 0 - размер по умолчанию.
func (b *Bus) NewClient(id string, queueSize int) *Client {
	if id == "" {
		id = uuid.New().String()
	}
	if queueSize <= 0 {
		queueSize = b.cfg.ClientQueue
	}
	c := newClient(id, queueSize)

	b.mu.Lock()
	b.clients[id] = c
	b.mu.Unlock()

	b.logger.Debug("Client registered", "client_id", id, "queue", queueSize)
	return c
}

// RemoveClient снимает все подписки клиента и закрывает его.
func (b *Bus) RemoveClient(c *Client) {
	b.Unsubscribe(c, c.Topics()...)

	b.mu.Lock()
	delete(b.clients, c.ID)
	b.mu.Unlock()

	c.close()
	b.logger.Debug("Client removed", "client_id", c.ID)
}

func (b *Bus) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Subscribe подписывает клиента на топики. Подписка снимает отметку об
// исключении из топика; пропущенное клиент получает через Resync.
func (b *Bus) Subscribe(c *Client, topics ...string) {
	for _, name := range topics {
		if name == models.TopicAll {
			b.wmu.Lock()
			c.subscribe(name)
			b.wildcard[c] = struct{}{}
			b.wmu.Unlock()
			continue
		}
		t := b.topic(name)
		t.mu.Lock()
		c.subscribe(name)
		t.subscribers[c] = struct{}{}
		t.mu.Unlock()
	}
}

func (b *Bus) Unsubscribe(c *Client, topics ...string) {
	for _, name := range topics {
		if name == models.TopicAll {
			b.wmu.Lock()
			delete(b.wildcard, c)
			c.unsubscribe(name)
			b.wmu.Unlock()
			continue
		}
		t := b.topic(name)
		t.mu.Lock()
		delete(t.subscribers, c)
		c.unsubscribe(name)
		t.mu.Unlock()
	}
}

// Publish назначает событию следующий Seq топика, сохраняет его в окне
// хранения и раздает подписчикам без блокировки.
func (b *Bus) Publish(ev models.Event) models.Event {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	t := b.topic(ev.Topic)
	t.mu.Lock()
	t.seq++
	ev.Seq = t.seq
	t.ring.push(ev)

	msgs := []models.ServerMessage{{Type: models.ServerEvent, Event: &ev}}
	for c := range t.subscribers {
		if c.offer(t.name, ev.Seq-1, msgs) == offerOverflow {
			delete(t.subscribers, c)
			b.dropped(c, t.name)
		}
	}

	var overflowed []*Client
	b.wmu.RLock()
	for c := range b.wildcard {
		if c.offer(models.TopicAll, 0, msgs) == offerOverflow {
			overflowed = append(overflowed, c)
		}
	}
	b.wmu.RUnlock()
	if len(overflowed) > 0 {
		b.wmu.Lock()
		for _, c := range overflowed {
			delete(b.wildcard, c)
			b.dropped(c, models.TopicAll)
		}
		b.wmu.Unlock()
	}
	t.mu.Unlock()

	b.metrics.EventPublished(string(ev.Type))
	return ev
}

func (b *Bus) dropped(c *Client, topic string) {
	b.metrics.ClientDropped()
	b.logger.Warn("Client queue overflow, dropped from topic", "client_id", c.ID, "topic", topic)
}

// LastSeq возвращает последний назначенный Seq топика.
func (b *Bus) LastSeq(name string) uint64 {
	t := b.topic(name)
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seq
}

// Resync повторно доставляет события топика с Seq > since и возобновляет
// подписку. Повтор и последующие живые события идут в очередь клиента
// без разрыва порядка.
func (b *Bus) Resync(c *Client, name string, since uint64) error {
	if name == models.TopicAll {
		return &ReplayUnavailableError{Topic: name, Since: since}
	}

	t := b.topic(name)
	t.mu.Lock()
	defer t.mu.Unlock()

	oldest := t.ring.oldest()
	if oldest == 0 {
		oldest = t.seq + 1
	}
	if since > t.seq || since+1 < oldest {
		return &ReplayUnavailableError{Topic: name, Since: since, Oldest: oldest}
	}

	c.subscribe(name)
	t.subscribers[c] = struct{}{}

	replay := t.ring.since(since)
	if len(replay) == 0 {
		return nil
	}
	msgs := make([]models.ServerMessage, len(replay))
	for i := range replay {
		msgs[i] = models.ServerMessage{Type: models.ServerEvent, Event: &replay[i]}
	}
	if c.offer(name, since, msgs) == offerOverflow {
		delete(t.subscribers, c)
		b.dropped(c, name)
	}
	b.logger.Debug("Replay delivered", "client_id", c.ID, "topic", name, "since", since, "events", len(replay))
	return nil
}

// Snapshot ставит в очередь клиента снимок состояния топика и подписывает
// клиента. Снимок снимается под блокировкой топика, поэтому все события
// после него имеют Seq больше возвращенного. take не должен публиковать.
func (b *Bus) Snapshot(c *Client, name string, take func() *models.TopicSnapshot) uint64 {
	t := b.topic(name)
	t.mu.Lock()
	defer t.mu.Unlock()

	c.subscribe(name)
	t.subscribers[c] = struct{}{}

	msg := models.ServerMessage{Type: models.ServerSnapshot, Topic: name, Seq: t.seq, Snapshot: take()}
	if c.offer(name, t.seq, []models.ServerMessage{msg}) == offerOverflow {
		delete(t.subscribers, c)
		b.dropped(c, name)
	}
	return t.seq
}
