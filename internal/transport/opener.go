package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"go.bug.st/serial"

	"github.com/iwtcode/cncService/internal/domain/models"
	apperrors "github.com/iwtcode/cncService/pkg/errors"
)

const (
	DefaultBaudRate       = 115200
	DefaultConnectTimeout = 5 * time.Second
)

// DefaultOpener открывает последовательные порты и TCP-сокеты.
type DefaultOpener struct{}

var _ Opener = DefaultOpener{}

func (DefaultOpener) Open(ctx context.Context, p Params) (Port, error) {
	timeout := p.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch p.Kind {
	case models.TransportTCP:
		return openTCP(ctx, p)
	case models.TransportSerial, "":
		return openSerial(ctx, p)
	default:
		return nil, apperrors.NewConnectionError(apperrors.ConnNotFound, "", p.Address,
			fmt.Errorf("неизвестный тип транспорта '%s'", p.Kind))
	}
}

func openTCP(ctx context.Context, p Params) (Port, error) {
	if _, _, err := net.SplitHostPort(p.Address); err != nil {
		return nil, apperrors.NewConnectionError(apperrors.ConnNotFound, "", p.Address,
			fmt.Errorf("неверный формат адреса. Ожидается 'HOST:PORT': %w", err))
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return nil, classifyDialError(ctx, p.Address, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return NewConn(conn), nil
}

func classifyDialError(ctx context.Context, address string, err error) error {
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.NewConnectionError(apperrors.ConnTimeout, "", address, err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return apperrors.NewConnectionError(apperrors.ConnNotFound, "", address, err)
	}
	return apperrors.NewConnectionError(apperrors.ConnIOFailure, "", address, err)
}

type serialResult struct {
	port serial.Port
	err  error
}

func openSerial(ctx context.Context, p Params) (Port, error) {
	baud := p.BaudRate
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	// serial.Open не принимает контекст, поэтому таймаут соблюдается снаружи.
	done := make(chan serialResult, 1)
	go func() {
		port, err := serial.Open(p.Address, mode)
		done <- serialResult{port: port, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, classifySerialError(p.Address, res.err)
		}
		return NewConn(res.port), nil
	case <-ctx.Done():
		go func() {
			if res := <-done; res.port != nil {
				_ = res.port.Close()
			}
		}()
		return nil, apperrors.NewConnectionError(apperrors.ConnTimeout, "", p.Address, ctx.Err())
	}
}

func classifySerialError(address string, err error) error {
	var perr *serial.PortError
	if errors.As(err, &perr) && perr.Code() == serial.PortNotFound {
		return apperrors.NewConnectionError(apperrors.ConnNotFound, "", address, err)
	}
	if errors.Is(err, os.ErrNotExist) {
		return apperrors.NewConnectionError(apperrors.ConnNotFound, "", address, err)
	}
	return apperrors.NewConnectionError(apperrors.ConnIOFailure, "", address, err)
}

// ListPorts возвращает имена доступных последовательных портов.
func ListPorts() ([]models.PortInfo, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("не удалось получить список портов: %w", err)
	}
	ports := make([]models.PortInfo, 0, len(names))
	for _, name := range names {
		ports = append(ports, models.PortInfo{Name: name})
	}
	return ports, nil
}
