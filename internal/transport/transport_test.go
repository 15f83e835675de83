package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iwtcode/cncService/internal/domain/models"
	apperrors "github.com/iwtcode/cncService/pkg/errors"
)

func TestConnLinesSplitsFrames(t *testing.T) {
	local, remote := net.Pipe()
	conn := NewConn(local)
	defer conn.Close()

	go func() {
		_, _ = remote.Write([]byte("ok\r\nerror:20\n\r\nGrbl 1.1h ['$' for help]\r"))
		_ = remote.Close()
	}()

	var frames []string
	var lastErr error
	for frame, err := range conn.Lines() {
		if err != nil {
			lastErr = err
			break
		}
		frames = append(frames, string(frame))
	}

	require.Equal(t, []string{"ok", "error:20", "Grbl 1.1h ['$' for help]"}, frames)
	require.ErrorIs(t, lastErr, io.EOF)
}

func TestConnLinesEndSilentlyAfterClose(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	conn := NewConn(local)

	done := make(chan error, 1)
	go func() {
		var got error
		for _, err := range conn.Lines() {
			if err != nil {
				got = err
			}
		}
		done <- got
	}()

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close(), "Close must be idempotent")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("line sequence did not end after Close")
	}
}

func TestConnWritePreservesOrder(t *testing.T) {
	local, remote := net.Pipe()
	conn := NewConn(local)
	defer conn.Close()

	received := make(chan string, 3)
	go func() {
		sc := bufio.NewScanner(remote)
		for sc.Scan() {
			received <- sc.Text()
		}
	}()

	for _, line := range []string{"G21", "G90", "G0 X1"} {
		require.NoError(t, conn.Write([]byte(line+"\n")))
	}
	require.Equal(t, "G21", <-received)
	require.Equal(t, "G90", <-received)
	require.Equal(t, "G0 X1", <-received)

	require.NoError(t, conn.Close())
	require.ErrorIs(t, conn.Write([]byte("M2\n")), ErrClosed)
}

func TestOpenTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		_, _ = c.Write([]byte("ok\n"))
		_ = c.Close()
	}()

	port, err := DefaultOpener{}.Open(context.Background(), Params{
		Kind:           models.TransportTCP,
		Address:        ln.Addr().String(),
		ConnectTimeout: time.Second,
	})
	require.NoError(t, err)
	defer port.Close()

	for frame, err := range port.Lines() {
		require.NoError(t, err)
		require.Equal(t, "ok", string(frame))
		break
	}
}

func TestOpenTCPRejectsMalformedAddress(t *testing.T) {
	_, err := DefaultOpener{}.Open(context.Background(), Params{Kind: models.TransportTCP, Address: "no-port"})
	require.Error(t, err)

	var connErr *apperrors.ConnectionError
	require.True(t, errors.As(err, &connErr))
	require.Equal(t, apperrors.ConnNotFound, connErr.Kind)
}

func TestOpenSerialMissingPort(t *testing.T) {
	_, err := DefaultOpener{}.Open(context.Background(), Params{
		Kind:           models.TransportSerial,
		Address:        "/dev/does-not-exist-cnc",
		ConnectTimeout: time.Second,
	})
	require.Error(t, err)

	var connErr *apperrors.ConnectionError
	require.True(t, errors.As(err, &connErr))
	require.NotEqual(t, apperrors.ConnTimeout, connErr.Kind)
}

// Слушатель принимает подключения, поэтому отказ возможен только по
// истечении срока подключения.
func TestOpenTCPTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	start := time.Now()
	_, err = DefaultOpener{}.Open(context.Background(), Params{
		Kind:           models.TransportTCP,
		Address:        ln.Addr().String(),
		ConnectTimeout: time.Nanosecond,
	})
	require.Error(t, err)
	require.Less(t, time.Since(start), DefaultConnectTimeout)

	var connErr *apperrors.ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, apperrors.ConnTimeout, connErr.Kind)
	require.Equal(t, ln.Addr().String(), connErr.Address)
}

func TestOpenTCPParentDeadlineIsTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err = DefaultOpener{}.Open(ctx, Params{
		Kind:           models.TransportTCP,
		Address:        ln.Addr().String(),
		ConnectTimeout: time.Second,
	})
	var connErr *apperrors.ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, apperrors.ConnTimeout, connErr.Kind)
}
