// Package transport moves small payloads between the bridge and the UI over
// filesystem-namespaced unix datagram sockets.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	network = "unixgram"

	// sendTimeout bounds a single write so a wedged receiver never stalls
	// the caller.
	sendTimeout = 100 * time.Millisecond

	// maxDatagram is the receive buffer size for the listening side.
	maxDatagram = 1024
)

// Sender delivers one payload to a named endpoint.
type Sender interface {
	Send(payload []byte) error
}

// Datagram is a best-effort Sender bound to one endpoint path. A missing or
// unready endpoint surfaces as an error from Send; nothing is queued or
// retried.
type Datagram struct {
	path string
}

// NewDatagram returns a Sender for the endpoint at path.
func NewDatagram(path string) *Datagram {
	return &Datagram{path: path}
}

// Path returns the destination endpoint.
func (d *Datagram) Path() string {
	return d.path
}

// Send writes payload as a single datagram.
func (d *Datagram) Send(payload []byte) error {
	addr := &net.UnixAddr{Name: d.path, Net: network}
	conn, err := net.DialUnix(network, nil, addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", d.path, err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(sendTimeout)); err != nil {
		return fmt.Errorf("set deadline %s: %w", d.path, err)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("send %s: %w", d.path, err)
	}
	return nil
}

// Handler is invoked once per received datagram. The slice is only valid for
// the duration of the call.
type Handler func(payload []byte)

// Listener owns a bound receiving endpoint.
type Listener struct {
	path   string
	conn   *net.UnixConn
	logger *zap.Logger

	closeOnce sync.Once
}

// Listen removes any stale endpoint file at path, binds a fresh one and makes
// it writable by every local user so that a UI running under a different
// account can reach it.
func Listen(path string, logger *zap.Logger) (*Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale endpoint %s: %w", path, err)
	}

	conn, err := net.ListenUnixgram(network, &net.UnixAddr{Name: path, Net: network})
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o666); err != nil {
		conn.Close()
		return nil, fmt.Errorf("chmod %s: %w", path, err)
	}

	return &Listener{path: path, conn: conn, logger: logger}, nil
}

// Path returns the bound endpoint path.
func (l *Listener) Path() string {
	return l.path
}

// Serve blocks receiving datagrams and hands each to h until ctx is done or
// the listener is closed. Cancellation is not an error.
func (l *Listener) Serve(ctx context.Context, h Handler) error {
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	buf := make([]byte, maxDatagram)
	for {
		n, _, err := l.conn.ReadFromUnix(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("receive %s: %w", l.path, err)
		}
		h(buf[:n])
	}
}

// Close releases the socket and removes the endpoint file.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.conn.Close()
		if rmErr := os.Remove(l.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			l.logger.Debug("remove endpoint", zap.String("path", l.path), zap.Error(rmErr))
		}
	})
	return err
}
