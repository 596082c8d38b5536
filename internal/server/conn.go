package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"
)

var (
	// ErrConnClosed is returned when sending on a closed or closing connection
	ErrConnClosed = errors.New("connection closed")
	// ErrSendQueueFull is returned when an unsolicited message does not fit the outbound queue
	ErrSendQueueFull = errors.New("send queue full")
)

// conn is the TCP endpoint of one session.
// Writes are queued and flushed by a dedicated writer goroutine.
// Only a failed or timed out write drops the connection hard.
type conn struct {
	nc           net.Conn
	send         chan []byte
	done         chan struct{} // closed once the socket is closed
	closing      chan struct{} // closed when the writer should flush and close
	closeOnce    sync.Once
	closingOnce  sync.Once
	writeTimeout time.Duration
	logger       *slog.Logger
}

func newConn(nc net.Conn, queueSize int, writeTimeout time.Duration, logger *slog.Logger) *conn {
	return &conn{
		nc:           nc,
		send:         make(chan []byte, queueSize),
		done:         make(chan struct{}),
		closing:      make(chan struct{}),
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// Send queues payload without blocking. A full queue drops the payload, not the connection.
func (c *conn) Send(payload []byte) error {
	if c.isClosing() {
		return ErrConnClosed
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSendQueueFull
	}
}

// SendWait queues payload, waiting for room in the queue.
// The wait ends when the writer drains, the connection closes or ctx is done.
func (c *conn) SendWait(ctx context.Context, payload []byte) error {
	if c.isClosing() {
		return ErrConnClosed
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnClosed
	case <-c.closing:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// Close drops the connection at once, discarding queued writes.
// The reader observes the closed socket and reports it to the loop.
func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.nc.Close()
	})
	return err
}

// CloseAfterFlush stops accepting writes and closes the socket once everything queued is written
func (c *conn) CloseAfterFlush() {
	c.closingOnce.Do(func() {
		close(c.closing)
	})
}

func (c *conn) isClosing() bool {
	select {
	case <-c.closing:
		return true
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			if !c.write(payload) {
				return
			}
		case <-c.closing:
			c.flush()
			_ = c.Close()
			return
		}
	}
}

// flush writes whatever is still queued
func (c *conn) flush() {
	for {
		select {
		case payload := <-c.send:
			if !c.write(payload) {
				return
			}
		default:
			return
		}
	}
}

func (c *conn) write(payload []byte) bool {
	if c.writeTimeout > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := c.nc.Write(payload); err != nil {
		c.logger.Warn("write failed, dropping connection", slog.String("error", err.Error()))
		_ = c.Close()
		return false
	}
	return true
}

// readLoop forwards raw reads to the event loop until the socket fails
func (c *conn) readLoop(bufSize int, events chan<- event, stop <-chan struct{}) {
	buf := make([]byte, bufSize)
	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case events <- event{kind: eventData, conn: c, data: data}:
			case <-stop:
				return
			}
		}
		if err != nil {
			select {
			case events <- event{kind: eventClosed, conn: c, err: err}:
			case <-stop:
			}
			return
		}
	}
}
