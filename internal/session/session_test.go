package session

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/wordgroups/internal/model"
	"github.com/mcoot/wordgroups/internal/protocol"
)

type fakeEndpoint struct {
	mu   sync.Mutex
	sent [][]byte
	addr net.Addr
}

func (f *fakeEndpoint) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeEndpoint) RemoteAddr() net.Addr { return f.addr }
func (f *fakeEndpoint) Close() error         { return nil }

func newTestSession() (*Session, *fakeEndpoint) {
	ep := &fakeEndpoint{addr: &net.TCPAddr{IP: net.ParseIP("10.0.0.7"), Port: 5000}}
	return New("s-1", ep, 0, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), ep
}

func TestLoginLogoutCycle(t *testing.T) {
	s, _ := newTestSession()
	assert.False(t, s.Authenticated())

	udp := &net.UDPAddr{IP: net.ParseIP("10.0.0.7"), Port: 9000}
	require.NoError(t, s.Login("alice", udp))
	assert.ErrorIs(t, s.Login("bob", nil), model.ErrAlreadyLoggedIn)

	name, ok := s.Username()
	assert.True(t, ok)
	assert.Equal(t, "alice", name)
	assert.Equal(t, udp, s.UDPAddr())

	prev, ok := s.Logout()
	assert.True(t, ok)
	assert.Equal(t, "alice", prev)
	assert.False(t, s.Authenticated())
	assert.Nil(t, s.UDPAddr())

	_, ok = s.Logout()
	assert.False(t, ok)
}

func TestSummaryClearedOnLogout(t *testing.T) {
	s, _ := newTestSession()
	require.NoError(t, s.Login("alice", nil))

	s.Remember(ProgressSummary{RoundID: 3, Score: 2})
	got, ok := s.Summary()
	require.True(t, ok)
	assert.Equal(t, 2, got.Score)

	s.Logout()
	_, ok = s.Summary()
	assert.False(t, ok)
}

func TestRenameOnlyWhenAuthenticated(t *testing.T) {
	s, _ := newTestSession()
	s.Rename("ghost")
	assert.False(t, s.Authenticated())

	require.NoError(t, s.Login("alice", nil))
	s.Rename("alicia")
	name, _ := s.Username()
	assert.Equal(t, "alicia", name)
}

func TestRemoteIP(t *testing.T) {
	s, _ := newTestSession()
	assert.True(t, net.ParseIP("10.0.0.7").Equal(s.RemoteIP()))
}

func TestSendEncodesResponse(t *testing.T) {
	s, ep := newTestSession()

	require.NoError(t, s.Send(protocol.NewGeneric("hi")))

	require.Len(t, ep.sent, 1)
	assert.Equal(t, byte(protocol.Terminator), ep.sent[0][len(ep.sent[0])-1])
	resp, err := protocol.DecodeResponse(string(ep.sent[0]))
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeGeneric, resp.ResponseType())
}
