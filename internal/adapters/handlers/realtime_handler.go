package handlers

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/iwtcode/cncService/internal/domain/models"
	"github.com/iwtcode/cncService/internal/services/eventbus"
	"github.com/iwtcode/cncService/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsMaxMessage = 64 * 1024
)

// Realtime открывает websocket-канал событий.
// @Summary Realtime-канал
// @Description Websocket. Клиент шлет {"type":"subscribe","topics":["machine:<id>","tasks"]}, "unsubscribe", {"type":"resync","topic":...,"since_seq":N} и {"type":"snapshot","topic":...}. Сервер шлет event, dropped, replay_unavailable, snapshot, ack и error.
// @Tags Realtime
// @Success 101 "Switching Protocols"
// @Router /ws [get]
func (h *Handler) Realtime(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err, "remote_addr", c.Request.RemoteAddr)
		return
	}

	s := &wsSession{
		h:      h,
		conn:   conn,
		client: h.usecase.OpenStream(""),
	}
	h.metrics.RealtimeClientConnected()
	h.logger.Info("Realtime client connected", "client_id", s.client.ID, "remote_addr", c.Request.RemoteAddr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(ctx)
	}()

	s.readLoop()

	cancel()
	h.usecase.CloseStream(s.client)
	<-done
	_ = conn.Close()

	h.metrics.RealtimeClientDisconnected()
	h.logger.Info("Realtime client disconnected", "client_id", s.client.ID)
}

// wsSession - одно websocket-подключение. Запись в conn сериализуется wmu.
type wsSession struct {
	h      *Handler
	conn   *websocket.Conn
	client *eventbus.Client
	wmu    sync.Mutex
}

func (s *wsSession) write(msg models.ServerMessage) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteJSON(msg)
}

func (s *wsSession) writeLoop(ctx context.Context) {
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		msg, err := s.client.Receive(ctx)
		if err != nil {
			return
		}
		if err := s.write(msg); err != nil {
			s.h.logger.Debug("Realtime write failed", "client_id", s.client.ID, "error", err)
			// разбудит readLoop
			_ = s.conn.Close()
			return
		}
	}
}

func (s *wsSession) readLoop() {
	s.conn.SetReadLimit(wsMaxMessage)
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var msg models.ClientMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.h.logger.Debug("Realtime read failed", "client_id", s.client.ID, "error", err)
			}
			return
		}
		if err := s.handle(msg); err != nil {
			return
		}
	}
}

// handle выполняет команду клиента. Ошибка возвращается только при сбое
// записи в сокет.
func (s *wsSession) handle(msg models.ClientMessage) error {
	switch msg.Type {
	case models.ClientSubscribe, models.ClientUnsubscribe:
		topics := msg.Topics
		if len(topics) == 0 && msg.Topic != "" {
			topics = []string{msg.Topic}
		}
		op := s.h.usecase.Subscribe
		if msg.Type == models.ClientUnsubscribe {
			op = s.h.usecase.Unsubscribe
		}
		if err := op(s.client, topics); err != nil {
			return s.fail(err)
		}
		return s.write(models.ServerMessage{Type: models.ServerAck, Topic: msg.Type})

	case models.ClientResync:
		err := s.h.usecase.Resync(s.client, msg.Topic, msg.SinceSeq)
		var unavailable *eventbus.ReplayUnavailableError
		if stderrors.As(err, &unavailable) {
			return s.write(models.ServerMessage{
				Type:  models.ServerReplayUnavailable,
				Topic: msg.Topic,
				Seq:   unavailable.Oldest,
			})
		}
		if err != nil {
			return s.fail(err)
		}
		return nil

	case models.ClientSnapshot:
		// снимок приходит через очередь клиента, раньше последующих событий
		if _, err := s.h.usecase.Snapshot(s.client, msg.Topic); err != nil {
			return s.fail(err)
		}
		return nil

	default:
		return s.fail(errors.NewAppError(errors.BadRequestErrorCode, "unknown_message", stderrors.New(msg.Type), true))
	}
}

func (s *wsSession) fail(err error) error {
	return s.write(models.ServerMessage{Type: models.ServerError, Error: wsDetail(err)})
}

func wsDetail(err error) *errors.Detail {
	var appErr *errors.AppError
	var d errors.Detailer
	if !stderrors.As(err, &d) && stderrors.As(err, &appErr) {
		return &errors.Detail{Kind: "BadRequest", Code: appErr.Message, Message: err.Error()}
	}
	detail := errors.DetailOf(err)
	return &detail
}
