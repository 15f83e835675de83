// Package transport владеет одним физическим или логическим каналом до
// контроллера: последовательным портом или TCP-сокетом. Уровень занимается
// только кадрированием байтового потока по строкам и не интерпретирует
// содержимое.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iwtcode/cncService/internal/domain/models"
)

// MaxFrameSize ограничивает длину одной строки ответа контроллера.
const MaxFrameSize = 64 * 1024

var ErrClosed = errors.New("transport: port closed")

// Params описывает адрес конечной точки.
type Params struct {
	Kind           models.TransportKind
	Address        string
	BaudRate       int
	ConnectTimeout time.Duration
}

// Port - открытый канал до контроллера.
type Port interface {
	// Write записывает байты целиком. Записи не переупорядочиваются.
	Write(p []byte) error
	// Lines возвращает ленивую конечную последовательность строк. Она
	// завершается без ошибки после Close и с ошибкой при обрыве канала.
	Lines() iter.Seq2[[]byte, error]
	// Close идемпотентен и безопасен после сбоя.
	Close() error
}

// Opener открывает Port по параметрам подключения.
type Opener interface {
	Open(ctx context.Context, p Params) (Port, error)
}

// Conn реализует Port поверх произвольного io.ReadWriteCloser.
type Conn struct {
	rwc       io.ReadWriteCloser
	wmu       sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func NewConn(rwc io.ReadWriteCloser) *Conn {
	return &Conn{rwc: rwc}
}

func (c *Conn) Write(p []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}
	for len(p) > 0 {
		n, err := c.rwc.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func (c *Conn) Lines() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		sc := bufio.NewScanner(c.rwc)
		sc.Buffer(make([]byte, 0, 256), MaxFrameSize)
		sc.Split(scanFrames)

		for sc.Scan() {
			frame := bytes.TrimSpace(sc.Bytes())
			if len(frame) == 0 {
				continue
			}
			out := make([]byte, len(frame))
			copy(out, frame)
			if !yield(out, nil) {
				return
			}
		}

		if c.closed.Load() {
			return
		}
		err := sc.Err()
		if err == nil {
			err = io.EOF
		}
		yield(nil, err)
	}
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.rwc.Close()
	})
	return c.closeErr
}

// scanFrames делит поток по '\n' или '\r': прошивки используют оба варианта.
func scanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
