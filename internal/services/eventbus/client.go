package eventbus

import (
	"context"
	"errors"
	"sync"

	"github.com/iwtcode/cncService/internal/domain/models"
)

var ErrClientClosed = errors.New("eventbus: client closed")

// Client - сессия подписчика шины: набор подписок, ограниченная очередь
// исходящих сообщений и топики, из которых клиент был исключен за
// переполнение.
type Client struct {
	ID string

	queue chan []models.ServerMessage

	mu      sync.Mutex
	topics  map[string]struct{}
	dropped map[string]uint64 // топик -> последний доставленный Seq
	notices []string          // топики с недоставленным уведомлением

	// pending принадлежит единственному читателю Receive.
	pending []models.ServerMessage

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id string, queueSize int) *Client {
	return &Client{
		ID:      id,
		queue:   make(chan []models.ServerMessage, queueSize),
		topics:  make(map[string]struct{}),
		dropped: make(map[string]uint64),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

type offerResult int

const (
	offerDelivered offerResult = iota
	offerSkipped
	offerOverflow
)

// offer ставит сообщения в очередь без блокировки. При переполнении
// клиент исключается из топика key, а уведомление доставляется позже.
func (c *Client) offer(key string, lastSeq uint64, msgs []models.ServerMessage) offerResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.topics[key]; !ok {
		return offerSkipped
	}
	select {
	case c.queue <- msgs:
		return offerDelivered
	default:
	}

	delete(c.topics, key)
	c.dropped[key] = lastSeq
	c.notices = append(c.notices, key)
	c.signal()
	return offerOverflow
}

func (c *Client) subscribe(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics[key] = struct{}{}
	delete(c.dropped, key)
}

func (c *Client) unsubscribe(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.topics, key)
	delete(c.dropped, key)
}

// Topics возвращает текущие подписки клиента.
func (c *Client) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	return out
}

// Dropped сообщает, исключен ли клиент из топика.
func (c *Client) Dropped(topic string) (lastSeq uint64, dropped bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lastSeq, dropped = c.dropped[topic]
	return
}

func (c *Client) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Client) takeNotice() (models.ServerMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.notices) > 0 {
		key := c.notices[0]
		c.notices = c.notices[1:]
		if seq, ok := c.dropped[key]; ok {
			return models.ServerMessage{Type: models.ServerDropped, Topic: key, Seq: seq}, true
		}
	}
	return models.ServerMessage{}, false
}

// Receive возвращает следующее сообщение клиента. Уведомления об
// исключении из топика приходят после того, как очередь опустела.
// Вызывается из одной горутины.
func (c *Client) Receive(ctx context.Context) (models.ServerMessage, error) {
	for {
		if len(c.pending) > 0 {
			msg := c.pending[0]
			c.pending = c.pending[1:]
			return msg, nil
		}

		select {
		case msgs := <-c.queue:
			c.pending = msgs
			continue
		default:
		}
		if msg, ok := c.takeNotice(); ok {
			return msg, nil
		}

		select {
		case msgs := <-c.queue:
			c.pending = msgs
		case <-c.wake:
		case <-c.done:
			return models.ServerMessage{}, ErrClientClosed
		case <-ctx.Done():
			return models.ServerMessage{}, ctx.Err()
		}
	}
}

// Done закрывается при удалении клиента из шины.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
