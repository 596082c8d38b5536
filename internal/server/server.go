package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/wordgroups/internal/dependencies/clock"
	"github.com/mcoot/wordgroups/internal/model"
	"github.com/mcoot/wordgroups/internal/protocol"
	"github.com/mcoot/wordgroups/internal/session"
)

// Handler processes the messages of a session.
// Calls for one session are never concurrent and arrive in the order the bytes did.
type Handler interface {
	Dispatch(ctx context.Context, sess *session.Session, message string) []byte
	Disconnect(ctx context.Context, sess *session.Session)
}

// Config holds configuration for the TCP server
type Config struct {
	Host           string
	Port           int
	MaxConnections int
	Workers        int
	ReadBufferSize int
	MaxMessageSize int
	SendQueueSize  int
	PushQueueSize  int
	WriteTimeout   time.Duration
}

// DefaultConfig returns the default server configuration
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           7070,
		MaxConnections: 1024,
		Workers:        runtime.GOMAXPROCS(0),
		ReadBufferSize: 4096,
		MaxMessageSize: protocol.DefaultMaxPending,
		SendQueueSize:  64,
		PushQueueSize:  16,
		WriteTimeout:   10 * time.Second,
	}
}

type eventKind int

const (
	eventAccepted eventKind = iota
	eventData
	eventClosed
)

type event struct {
	kind eventKind
	conn *conn
	data []byte
	err  error
}

type entry struct {
	sess     *session.Session
	conn     *conn
	mailbox  *Mailbox
	rejected bool // input after an oversized message is ignored
}

// Server accepts TCP clients and runs a single event loop that owns every session
type Server struct {
	handler Handler
	clock   clock.Clock
	logger  *slog.Logger
	cfg     Config

	listener net.Listener
	events   chan event
	push     chan []byte
	stop     chan struct{}
	pool     *Pool

	sessions map[*conn]*entry // owned by the loop
	active   atomic.Int64

	conns sync.WaitGroup
}

// New creates a Server
func New(handler Handler, clock clock.Clock, logger *slog.Logger, cfg Config) *Server {
	def := DefaultConfig()
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = def.ReadBufferSize
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	if cfg.PushQueueSize <= 0 {
		cfg.PushQueueSize = def.PushQueueSize
	}
	logger = logger.With(slog.String("component", "tcp_server"))

	return &Server{
		handler:  handler,
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
		events:   make(chan event, 256),
		push:     make(chan []byte, cfg.PushQueueSize),
		stop:     make(chan struct{}),
		pool:     NewPool(cfg.Workers, logger),
		sessions: make(map[*conn]*entry),
	}
}

// Listen binds the configured address
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ActiveConnections returns the number of open sessions
func (s *Server) ActiveConnections() int {
	return int(s.active.Load())
}

// ListenAndServe binds and serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve runs the event loop until ctx is cancelled. Listen must have been called.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}
	s.logger.Info("tcp server listening", slog.String("addr", s.listener.Addr().String()))

	s.pool.Start(context.WithoutCancel(ctx))

	acceptErr := make(chan error, 1)
	go func() {
		acceptErr <- s.acceptLoop()
	}()

	for {
		select {
		case <-ctx.Done():
			s.shutdown(ctx)
			return nil

		case err := <-acceptErr:
			s.shutdown(ctx)
			return err

		case ev := <-s.events:
			s.handleEvent(ctx, ev)

		case payload := <-s.push:
			s.broadcast(payload)
		}
	}
}

// Push sends payload to every authenticated session. Drops when the loop is saturated.
func (s *Server) Push(payload []byte) {
	select {
	case s.push <- payload:
	case <-s.stop:
	default:
		s.logger.Warn("push queue full, dropping message")
	}
}

// Notify pushes a round event to every authenticated TCP client
func (s *Server) Notify(_ context.Context, e model.Event) {
	payload, err := protocol.EncodeResponse(protocol.NewNotification(e))
	if err != nil {
		s.logger.Error("failed to encode notification", slog.String("error", err.Error()))
		return
	}
	s.Push(payload)
}

func (s *Server) acceptLoop() error {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		c := newConn(nc, s.cfg.SendQueueSize, s.cfg.WriteTimeout,
			s.logger.With(slog.String("remote_addr", nc.RemoteAddr().String())))
		select {
		case s.events <- event{kind: eventAccepted, conn: c}:
		case <-s.stop:
			_ = nc.Close()
			return nil
		}
	}
}

func (s *Server) handleEvent(ctx context.Context, ev event) {
	switch ev.kind {
	case eventAccepted:
		s.accept(ev.conn)
	case eventData:
		s.receive(ctx, ev.conn, ev.data)
	case eventClosed:
		s.release(ctx, ev.conn, ev.err)
	}
}

func (s *Server) accept(c *conn) {
	if len(s.sessions) >= s.cfg.MaxConnections {
		s.logger.Warn("connection limit reached, rejecting client",
			slog.String("remote_addr", c.RemoteAddr().String()),
			slog.Int("max_connections", s.cfg.MaxConnections),
		)
		_ = c.Close()
		return
	}

	sess := session.New(uuid.NewString(), c, s.cfg.MaxMessageSize, s.clock.Now())
	s.sessions[c] = &entry{sess: sess, conn: c, mailbox: &Mailbox{}}
	s.active.Store(int64(len(s.sessions)))

	s.conns.Add(2)
	go func() {
		defer s.conns.Done()
		c.writeLoop()
	}()
	go func() {
		defer s.conns.Done()
		c.readLoop(s.cfg.ReadBufferSize, s.events, s.stop)
	}()

	s.logger.Info("client connected",
		slog.String("session_id", sess.ID()),
		slog.String("remote_addr", c.RemoteAddr().String()),
	)
}

func (s *Server) receive(ctx context.Context, c *conn, data []byte) {
	e, ok := s.sessions[c]
	if !ok || e.rejected {
		return
	}

	messages, err := e.sess.Framer().Feed(data)
	for _, msg := range messages {
		s.submit(e, msg)
	}
	if err != nil {
		s.logger.Warn("closing connection",
			slog.String("session_id", e.sess.ID()),
			slog.String("error", err.Error()),
		)
		e.rejected = true
		s.submitReject(e, err)
	}
}

// submit queues msg on the session's mailbox. The reply waits for room in the
// outbound queue, so a client that pipelines ahead only stalls its own mailbox.
func (s *Server) submit(e *entry, msg string) {
	sess, c := e.sess, e.conn
	s.pool.Submit(e.mailbox, func(ctx context.Context) {
		payload := s.handler.Dispatch(ctx, sess, msg)
		if payload == nil {
			return
		}
		if err := c.SendWait(ctx, payload); err != nil {
			s.logger.Debug("failed to send response",
				slog.String("session_id", sess.ID()),
				slog.String("error", err.Error()),
			)
		}
	})
}

// submitReject answers an oversized message with an error then drops the connection,
// queued behind earlier messages of the session
func (s *Server) submitReject(e *entry, cause error) {
	c := e.conn
	s.pool.Submit(e.mailbox, func(ctx context.Context) {
		payload, err := protocol.EncodeResponse(protocol.NewError(400, protocol.CodeBadRequest, cause.Error()))
		if err == nil {
			_ = c.SendWait(ctx, payload)
		}
		c.CloseAfterFlush()
	})
}

func (s *Server) release(ctx context.Context, c *conn, cause error) {
	e, ok := s.sessions[c]
	if !ok {
		return
	}
	delete(s.sessions, c)
	s.active.Store(int64(len(s.sessions)))
	_ = c.Close()

	attrs := []any{slog.String("session_id", e.sess.ID())}
	if cause != nil && !errors.Is(cause, io.EOF) && !errors.Is(cause, net.ErrClosed) {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}
	s.logger.Info("client disconnected", attrs...)

	sess := e.sess
	s.pool.Submit(e.mailbox, func(ctx context.Context) {
		s.handler.Disconnect(ctx, sess)
	})
}

func (s *Server) broadcast(payload []byte) {
	for c, e := range s.sessions {
		if !e.sess.Authenticated() {
			continue
		}
		if err := c.Send(payload); err != nil {
			s.logger.Warn("push not delivered",
				slog.String("session_id", e.sess.ID()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Server) shutdown(ctx context.Context) {
	close(s.stop)
	_ = s.listener.Close()

	for c := range s.sessions {
		s.release(ctx, c, nil)
	}

	s.pool.Shutdown()
	s.conns.Wait()
	s.logger.Info("tcp server stopped")
}
