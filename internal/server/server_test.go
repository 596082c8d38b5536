package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/wordgroups/internal/dependencies/mocks"
	"github.com/mcoot/wordgroups/internal/model"
	"github.com/mcoot/wordgroups/internal/protocol"
	"github.com/mcoot/wordgroups/internal/session"
	"github.com/mcoot/wordgroups/internal/testutil"
)

type recordingHandler struct {
	mu           sync.Mutex
	seen         map[string][]string
	disconnected chan string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		seen:         make(map[string][]string),
		disconnected: make(chan string, 16),
	}
}

func (h *recordingHandler) Dispatch(_ context.Context, sess *session.Session, message string) []byte {
	h.mu.Lock()
	h.seen[sess.ID()] = append(h.seen[sess.ID()], message)
	h.mu.Unlock()

	switch message {
	case "login":
		_ = sess.Login("player", nil)
		return []byte("ok\n")
	case "silent":
		return nil
	case "boom":
		panic("handler exploded")
	}
	return []byte("echo:" + message + "\n")
}

func (h *recordingHandler) Disconnect(_ context.Context, sess *session.Session) {
	h.disconnected <- sess.ID()
}

type ServerSuite struct {
	suite.Suite
	handler *recordingHandler
	server  *Server
	cancel  context.CancelFunc
	done    chan error
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	s.start(func(cfg *Config) {})
}

func (s *ServerSuite) TearDownTest() {
	s.stop()
}

func (s *ServerSuite) start(mutate func(cfg *Config)) {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.Workers = 4
	mutate(&cfg)

	s.handler = newRecordingHandler()
	s.server = New(s.handler, mocks.NewMockClock(time.Now()), testutil.NopLogger(), cfg)
	s.Require().NoError(s.server.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)
	go func() {
		s.done <- s.server.Serve(ctx)
	}()
}

func (s *ServerSuite) stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	select {
	case err := <-s.done:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.Fail("server did not stop")
	}
	s.cancel = nil
}

func (s *ServerSuite) dial() (net.Conn, *bufio.Reader) {
	c, err := net.Dial("tcp", s.server.Addr().String())
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = c.Close() })
	return c, bufio.NewReader(c)
}

func (s *ServerSuite) readLine(r *bufio.Reader, c net.Conn) string {
	s.Require().NoError(c.SetReadDeadline(time.Now().Add(3 * time.Second)))
	line, err := r.ReadString('\n')
	s.Require().NoError(err)
	return strings.TrimSuffix(line, "\n")
}

func (s *ServerSuite) expectClosed(r *bufio.Reader, c net.Conn) {
	s.Require().NoError(c.SetReadDeadline(time.Now().Add(3 * time.Second)))
	_, err := r.ReadString('\n')
	s.Require().Error(err)
	var netErr net.Error
	if errors.As(err, &netErr) {
		s.False(netErr.Timeout(), "expected the server to close the connection")
	}
}

func (s *ServerSuite) TestMessageSplitAcrossWrites() {
	c, r := s.dial()

	_, err := c.Write([]byte("hel"))
	s.Require().NoError(err)
	time.Sleep(20 * time.Millisecond)
	_, err = c.Write([]byte("lo\nwor"))
	s.Require().NoError(err)
	_, err = c.Write([]byte("ld\n"))
	s.Require().NoError(err)

	s.Equal("echo:hello", s.readLine(r, c))
	s.Equal("echo:world", s.readLine(r, c))
}

func (s *ServerSuite) TestResponsesKeepRequestOrder() {
	c, r := s.dial()

	var batch strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&batch, "m%d\n", i)
	}
	_, err := c.Write([]byte(batch.String()))
	s.Require().NoError(err)

	for i := 0; i < 200; i++ {
		s.Equal(fmt.Sprintf("echo:m%d", i), s.readLine(r, c))
	}
}

func (s *ServerSuite) TestPipelinedRequestsBeyondSendQueue() {
	s.stop()
	s.start(func(cfg *Config) { cfg.SendQueueSize = 2 })

	c, r := s.dial()
	var batch strings.Builder
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&batch, "m%d\n", i)
	}
	_, err := c.Write([]byte(batch.String()))
	s.Require().NoError(err)

	for i := 0; i < 100; i++ {
		s.Equal(fmt.Sprintf("echo:m%d", i), s.readLine(r, c))
	}
	s.Equal(1, s.server.ActiveConnections())
}

func (s *ServerSuite) TestSilentResponseSendsNothing() {
	c, r := s.dial()

	_, err := c.Write([]byte("silent\nafter\n"))
	s.Require().NoError(err)

	s.Equal("echo:after", s.readLine(r, c))
}

func (s *ServerSuite) TestPanickingHandlerDoesNotKillWorkers() {
	c, r := s.dial()

	_, err := c.Write([]byte("boom\nstill alive\n"))
	s.Require().NoError(err)

	s.Equal("echo:still alive", s.readLine(r, c))
}

func (s *ServerSuite) TestDisconnectRunsAfterPendingMessages() {
	c, r := s.dial()
	_, err := c.Write([]byte("one\n"))
	s.Require().NoError(err)
	s.Equal("echo:one", s.readLine(r, c))
	s.Equal(1, s.server.ActiveConnections())

	_, err = c.Write([]byte("two\n"))
	s.Require().NoError(err)
	s.Require().NoError(c.Close())

	select {
	case id := <-s.handler.disconnected:
		s.handler.mu.Lock()
		defer s.handler.mu.Unlock()
		s.Equal([]string{"one", "two"}, s.handler.seen[id])
	case <-time.After(3 * time.Second):
		s.Fail("disconnect was not reported")
	}
	s.Eventually(func() bool { return s.server.ActiveConnections() == 0 }, 3*time.Second, 10*time.Millisecond)
}

func (s *ServerSuite) TestConnectionLimit() {
	s.stop()
	s.start(func(cfg *Config) { cfg.MaxConnections = 1 })

	first, firstReader := s.dial()
	_, err := first.Write([]byte("hi\n"))
	s.Require().NoError(err)
	s.Equal("echo:hi", s.readLine(firstReader, first))

	second, secondReader := s.dial()
	s.expectClosed(secondReader, second)

	_, err = first.Write([]byte("still here\n"))
	s.Require().NoError(err)
	s.Equal("echo:still here", s.readLine(firstReader, first))
}

func (s *ServerSuite) TestOversizedMessageIsRejected() {
	s.stop()
	s.start(func(cfg *Config) { cfg.MaxMessageSize = 16 })

	c, r := s.dial()
	_, err := c.Write([]byte("ok\n" + strings.Repeat("x", 64)))
	s.Require().NoError(err)

	s.Equal("echo:ok", s.readLine(r, c))

	resp, err := protocol.DecodeResponse(s.readLine(r, c))
	s.Require().NoError(err)
	errResp, ok := resp.(*protocol.ErrorResponse)
	s.Require().True(ok)
	s.Equal(protocol.CodeBadRequest, errResp.Error)

	s.expectClosed(r, c)
}

func (s *ServerSuite) TestNotifyReachesOnlyAuthenticatedSessions() {
	authed, authedReader := s.dial()
	anon, anonReader := s.dial()

	_, err := authed.Write([]byte("login\n"))
	s.Require().NoError(err)
	s.Equal("ok", s.readLine(authedReader, authed))

	_, err = anon.Write([]byte("ping\n"))
	s.Require().NoError(err)
	s.Equal("echo:ping", s.readLine(anonReader, anon))

	s.server.Notify(context.Background(), model.Event{
		Type:     model.EventRoundStarted,
		RoundID:  3,
		Run:      1,
		Duration: time.Minute,
	})

	resp, err := protocol.DecodeResponse(s.readLine(authedReader, authed))
	s.Require().NoError(err)
	note, ok := resp.(*protocol.NotificationResponse)
	s.Require().True(ok)
	s.Equal(model.EventRoundStarted, note.Event)
	s.Equal(model.RoundID(3), note.GameID)

	// the anonymous client only sees its own traffic
	_, err = anon.Write([]byte("pong\n"))
	s.Require().NoError(err)
	s.Equal("echo:pong", s.readLine(anonReader, anon))
}

func (s *ServerSuite) TestShutdownClosesClients() {
	c, r := s.dial()
	_, err := c.Write([]byte("hi\n"))
	s.Require().NoError(err)
	s.Equal("echo:hi", s.readLine(r, c))

	s.stop()

	s.expectClosed(r, c)
	select {
	case <-s.handler.disconnected:
	case <-time.After(3 * time.Second):
		s.Fail("disconnect was not reported on shutdown")
	}
}

func (s *ServerSuite) TestServeWithoutListen() {
	srv := New(newRecordingHandler(), mocks.NewMockClock(time.Now()), testutil.NopLogger(), DefaultConfig())
	s.Error(srv.Serve(context.Background()))
}
