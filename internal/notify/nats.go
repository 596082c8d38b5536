package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mcoot/wordgroups/internal/model"
	"github.com/mcoot/wordgroups/internal/protocol"
)

// Publisher is the subset of *nats.Conn the bridge needs
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSBridge mirrors round events onto NATS subjects "<prefix>.<event>"
type NATSBridge struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
}

// NewNATSBridge creates a bridge publishing through pub
func NewNATSBridge(pub Publisher, prefix string, logger *slog.Logger) *NATSBridge {
	if prefix == "" {
		prefix = "wordgroups"
	}
	return &NATSBridge{
		pub:    pub,
		prefix: prefix,
		logger: logger.With(slog.String("component", "nats_bridge")),
	}
}

// ConnectNATS dials a NATS server with reconnects enabled
func ConnectNATS(url, name string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
	)
}

// Subject returns the subject an event type is published on
func (b *NATSBridge) Subject(t model.EventType) string {
	return b.prefix + "." + string(t)
}

func (b *NATSBridge) Notify(ctx context.Context, event model.Event) {
	data, err := json.Marshal(protocol.NewNotification(event))
	if err != nil {
		b.logger.Error("failed to encode event", slog.String("error", err.Error()))
		return
	}

	subject := b.Subject(event.Type)
	if err := b.pub.Publish(subject, data); err != nil {
		b.logger.Warn("failed to publish event",
			slog.String("subject", subject),
			slog.String("error", err.Error()),
		)
	}
}
