package gotap

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
)

// TransportHandlers receives the lifecycle signals of a transport.  The
// signals are delivered one at a time from a single goroutine; Data
// chunks carry arbitrary sizes and boundaries.
type TransportHandlers struct {
	Connected func()
	Data      func(chunk []byte)
	Error     func(err error)
	Closed    func()
	End       func()
}

// Transport is the byte-stream collaborator the client runs over.  An
// implementation delivers inbound bytes and lifecycle signals through
// the handlers given to Open.
type Transport interface {
	Open(ctx context.Context, address string, handlers *TransportHandlers) error
	Write(buf []byte) error
	Close() error
}

// TCPTransport is the standard Transport over a plain TCP socket.
type TCPTransport struct {
	DialTimeout time.Duration

	conn net.Conn
}

var _ Transport = (*TCPTransport)(nil)

func (t *TCPTransport) Open(ctx context.Context, address string, handlers *TransportHandlers) error {
	dialer := net.Dialer{
		Timeout: t.DialTimeout,
	}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to dial tap endpoint")
	}

	t.conn = conn

	if handlers.Connected != nil {
		handlers.Connected()
	}

	go t.readLoop(handlers)

	return nil
}

func (t *TCPTransport) readLoop(handlers *TransportHandlers) {
	buf := make([]byte, 32*1024)
	for {
		n, err := t.conn.Read(buf)
		if n > 0 && handlers.Data != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			handlers.Data(chunk)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if handlers.End != nil {
					handlers.End()
				}
			} else if isConnClosedError(err) {
				if handlers.Closed != nil {
					handlers.Closed()
				}
			} else {
				if handlers.Error != nil {
					handlers.Error(errors.Wrap(err, "transport read failed"))
				}
			}
			return
		}
	}
}

func (t *TCPTransport) Write(buf []byte) error {
	if t.conn == nil {
		return errors.New("transport is not open")
	}

	_, err := t.conn.Write(buf)
	if err != nil {
		return errors.Wrap(err, "transport write failed")
	}

	return nil
}

func (t *TCPTransport) Close() error {
	if t.conn == nil {
		return nil
	}

	return t.conn.Close()
}

func isConnClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
