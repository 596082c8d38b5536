package notify

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mcoot/wordgroups/internal/model"
	"github.com/mcoot/wordgroups/internal/protocol"
)

const defaultWriteTimeout = 500 * time.Millisecond

type subscriber struct {
	username string
	addr     *net.UDPAddr
}

// FanOut pushes events as UDP datagrams to every subscribed session
type FanOut struct {
	conn         net.PacketConn
	logger       *slog.Logger
	writeTimeout time.Duration

	mu   sync.RWMutex
	subs map[string]subscriber // session id -> subscriber
}

// NewFanOut creates a FanOut sending from conn
func NewFanOut(conn net.PacketConn, logger *slog.Logger) *FanOut {
	return &FanOut{
		conn:         conn,
		logger:       logger.With(slog.String("component", "udp_fanout")),
		writeTimeout: defaultWriteTimeout,
		subs:         make(map[string]subscriber),
	}
}

// Subscribe registers the notification address of an authenticated session
func (f *FanOut) Subscribe(sessionID, username string, addr *net.UDPAddr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[sessionID] = subscriber{username: username, addr: addr}
}

// Unsubscribe removes a session; unknown ids are ignored
func (f *FanOut) Unsubscribe(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, sessionID)
}

// Rename updates the username attached to a subscription
func (f *FanOut) Rename(sessionID, username string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subs[sessionID]; ok {
		sub.username = username
		f.subs[sessionID] = sub
	}
}

// Subscribers returns the number of registered sessions
func (f *FanOut) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Notify sends event to every subscriber; a failed send is logged and skipped
func (f *FanOut) Notify(ctx context.Context, event model.Event) {
	payload, err := protocol.EncodeResponse(protocol.NewNotification(event))
	if err != nil {
		f.logger.Error("failed to encode notification", slog.String("error", err.Error()))
		return
	}

	f.mu.RLock()
	targets := make([]subscriber, 0, len(f.subs))
	for _, sub := range f.subs {
		targets = append(targets, sub)
	}
	f.mu.RUnlock()

	delivered := 0
	for _, sub := range targets {
		if ctx.Err() != nil {
			return
		}
		_ = f.conn.SetWriteDeadline(time.Now().Add(f.writeTimeout))
		if _, err := f.conn.WriteTo(payload, sub.addr); err != nil {
			f.logger.Warn("notification not delivered",
				slog.String("username", sub.username),
				slog.String("addr", sub.addr.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		delivered++
	}

	f.logger.Debug("notification broadcast",
		slog.String("event", string(event.Type)),
		slog.Int("round_id", int(event.RoundID)),
		slog.Int("delivered", delivered),
		slog.Int("subscribers", len(targets)),
	)
}
