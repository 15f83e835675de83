// Package testutil содержит поддельный контроллер станка для тестов
// сессии и сервисов.
package testutil

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/iwtcode/cncService/internal/transport"
)

// Responder возвращает ответы контроллера на принятую строку. nil -
// ответы отправляются тестом вручную.
type Responder func(line string) []string

// AlwaysOK отвечает "ok" на каждую строку.
func AlwaysOK(string) []string { return []string{"ok"} }

// FakeController - контроллер на серверной стороне net.Pipe. Считает
// принятые строки и отправленные подтверждения "ok", чтобы тест мог
// проверить максимальное число неподтвержденных строк на проводе.
type FakeController struct {
	conn      net.Conn
	responder Responder

	mu             sync.Mutex
	received       []string
	acked          int
	maxOutstanding int

	wmu    sync.Mutex
	lines  chan string
	closed chan struct{}
}

func NewFakeController(conn net.Conn, responder Responder) *FakeController {
	f := &FakeController{
		conn:      conn,
		responder: responder,
		lines:     make(chan string, 1<<16),
		closed:    make(chan struct{}),
	}
	go f.readLoop()
	return f
}

func (f *FakeController) readLoop() {
	defer close(f.closed)

	sc := bufio.NewScanner(f.conn)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		f.mu.Lock()
		f.received = append(f.received, line)
		f.maxOutstanding = max(f.maxOutstanding, len(f.received)-f.acked)
		f.mu.Unlock()

		select {
		case f.lines <- line:
		default:
		}

		if f.responder != nil {
			for _, reply := range f.responder(line) {
				if err := f.Send(reply); err != nil {
					return
				}
			}
		}
	}
}

// Send пишет строку ответа. Подтверждения "ok" учитываются до записи,
// чтобы счетчик не отставал от реакции сессии.
func (f *FakeController) Send(line string) error {
	if strings.HasPrefix(strings.ToLower(line), "ok") {
		f.mu.Lock()
		f.acked++
		f.mu.Unlock()
	}

	f.wmu.Lock()
	defer f.wmu.Unlock()
	_, err := f.conn.Write([]byte(line + "\n"))
	return err
}

// Ack отправляет n подтверждений "ok".
func (f *FakeController) Ack(n int) error {
	for i := 0; i < n; i++ {
		if err := f.Send("ok"); err != nil {
			return err
		}
	}
	return nil
}

// Received возвращает копию принятых строк по порядку.
func (f *FakeController) Received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

func (f *FakeController) ReceivedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

// Outstanding - принятые, но еще не подтвержденные строки.
func (f *FakeController) Outstanding() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received) - f.acked
}

func (f *FakeController) MaxOutstanding() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxOutstanding
}

// Next ждет следующую принятую строку.
func (f *FakeController) Next(timeout time.Duration) (string, bool) {
	select {
	case line := <-f.lines:
		return line, true
	case <-time.After(timeout):
		return "", false
	}
}

// Close рвет соединение, имитируя отказ транспорта.
func (f *FakeController) Close() error {
	return f.conn.Close()
}

// Closed закрывается, когда сессия закрыла свою сторону канала.
func (f *FakeController) Closed() <-chan struct{} {
	return f.closed
}

// FakeOpener открывает net.Pipe с поддельным контроллером на другом конце.
type FakeOpener struct {
	Responder Responder
	// Err возвращается из Open вместо подключения.
	Err error

	mu          sync.Mutex
	controllers []*FakeController
}

var _ transport.Opener = (*FakeOpener)(nil)

func (o *FakeOpener) Open(ctx context.Context, _ transport.Params) (transport.Port, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.Err != nil {
		return nil, o.Err
	}
	client, server := net.Pipe()
	o.controllers = append(o.controllers, NewFakeController(server, o.Responder))
	return transport.NewConn(client), nil
}

// Controller возвращает контроллер последнего подключения.
func (o *FakeOpener) Controller() *FakeController {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.controllers) == 0 {
		return nil
	}
	return o.controllers[len(o.controllers)-1]
}

func (o *FakeOpener) Opened() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.controllers)
}
