package session

import (
	"net"
	"sync"
	"time"

	"github.com/mcoot/wordgroups/internal/model"
	"github.com/mcoot/wordgroups/internal/protocol"
)

// Endpoint is the transport side of a session
type Endpoint interface {
	// Send queues an encoded message for delivery without blocking on the socket
	Send(payload []byte) error
	RemoteAddr() net.Addr
	Close() error
}

// ProgressSummary is a read-only copy of the player's last known match state.
// The match registry stays authoritative; this is only used for logging and quick display.
type ProgressSummary struct {
	RoundID  model.RoundID
	Run      int64
	Score    int
	Errors   int
	Finished bool
}

// Session is the state of one client connection
type Session struct {
	id        string
	endpoint  Endpoint
	framer    *protocol.Framer
	createdAt time.Time

	mu       sync.Mutex
	username string
	udpAddr  *net.UDPAddr
	summary  *ProgressSummary
}

// New creates a Session for a freshly accepted connection
func New(id string, endpoint Endpoint, maxPending int, now time.Time) *Session {
	return &Session{
		id:        id,
		endpoint:  endpoint,
		framer:    protocol.NewFramer(maxPending),
		createdAt: now,
	}
}

// ID returns the unique session identifier
func (s *Session) ID() string {
	return s.id
}

// CreatedAt returns when the connection was accepted
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Endpoint returns the transport handle for direct writes
func (s *Session) Endpoint() Endpoint {
	return s.endpoint
}

// Framer returns the inbound accumulator.
// Only the event loop may call this.
func (s *Session) Framer() *protocol.Framer {
	return s.framer
}

// Username returns the authenticated username, if any
func (s *Session) Username() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username, s.username != ""
}

// Authenticated reports whether the session has logged in
func (s *Session) Authenticated() bool {
	_, ok := s.Username()
	return ok
}

// Login marks the session as authenticated as username
func (s *Session) Login(username string, udpAddr *net.UDPAddr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.username != "" {
		return model.ErrAlreadyLoggedIn
	}
	s.username = username
	s.udpAddr = udpAddr
	s.summary = nil
	return nil
}

// Logout resets the authentication fields and returns the previous username
func (s *Session) Logout() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := s.username
	s.username = ""
	s.udpAddr = nil
	s.summary = nil
	return name, name != ""
}

// Rename changes the authenticated username after a credentials update
func (s *Session) Rename(newName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.username != "" {
		s.username = newName
	}
}

// UDPAddr returns the notification address registered at login
func (s *Session) UDPAddr() *net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.udpAddr
}

// Remember caches the latest progress summary
func (s *Session) Remember(summary ProgressSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = &summary
}

// Summary returns the cached progress summary, if any
func (s *Session) Summary() (ProgressSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary == nil {
		return ProgressSummary{}, false
	}
	return *s.summary, true
}

// RemoteIP returns the peer IP of the connection, or nil if unknown
func (s *Session) RemoteIP() net.IP {
	switch addr := s.endpoint.RemoteAddr().(type) {
	case *net.TCPAddr:
		return addr.IP
	case *net.UDPAddr:
		return addr.IP
	}
	if host, _, err := net.SplitHostPort(s.endpoint.RemoteAddr().String()); err == nil {
		return net.ParseIP(host)
	}
	return nil
}

// Send encodes resp and queues it on the endpoint
func (s *Session) Send(resp protocol.Response) error {
	payload, err := protocol.EncodeResponse(resp)
	if err != nil {
		return err
	}
	return s.endpoint.Send(payload)
}
