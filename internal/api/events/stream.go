package events

import (
	"net/http"
	"time"
)

const (
	// Time between keepalive comments
	pingPeriod = 30 * time.Second

	sendBufferSize = 64
)

// Client is one connected event stream
type Client struct {
	remoteAddr  string
	connectedAt time.Time
	send        chan []byte
}

// NewClient creates a stream client
func NewClient(remoteAddr string) *Client {
	return &Client{
		remoteAddr:  remoteAddr,
		connectedAt: time.Now(),
		send:        make(chan []byte, sendBufferSize),
	}
}

// Handler serves the event stream of hub as text/event-stream
func Handler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := http.NewResponseController(w)
		// streams outlive the server's write timeout
		_ = rc.SetWriteDeadline(time.Time{})

		client := NewClient(r.RemoteAddr)
		if !hub.Register(client) {
			http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
			return
		}
		defer hub.Unregister(client)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		_, _ = w.Write(formatMessage("connected", `{"status":"connected"}`))
		if err := rc.Flush(); err != nil {
			return
		}

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.send:
				if !ok {
					return
				}
				if _, err := w.Write(message); err != nil {
					return
				}
				_ = rc.Flush()

			case <-ticker.C:
				if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
					return
				}
				_ = rc.Flush()

			case <-r.Context().Done():
				return
			}
		}
	}
}
