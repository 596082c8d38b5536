package server

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/wordgroups/internal/testutil"
)

func pipeConn(t *testing.T, queueSize int, writeTimeout time.Duration) (*conn, net.Conn) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	t.Cleanup(func() {
		_ = serverSide.Close()
		_ = clientSide.Close()
	})
	return newConn(serverSide, queueSize, writeTimeout, testutil.NopLogger()), clientSide
}

func TestCloseAfterFlushDeliversQueuedWrites(t *testing.T) {
	c, client := pipeConn(t, 8, time.Second)
	for _, p := range []string{"one\n", "two\n", "three\n"} {
		require.NoError(t, c.Send([]byte(p)))
	}
	c.CloseAfterFlush()
	assert.ErrorIs(t, c.Send([]byte("late\n")), ErrConnClosed)

	go c.writeLoop()

	data, err := io.ReadAll(client)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\n", string(data))

	select {
	case <-c.done:
	case <-time.After(time.Second):
		t.Fatal("socket not closed after flush")
	}
}

func TestSendDropsPayloadNotConnectionWhenFull(t *testing.T) {
	c, _ := pipeConn(t, 1, time.Second)

	require.NoError(t, c.Send([]byte("first\n")))
	assert.ErrorIs(t, c.Send([]byte("second\n")), ErrSendQueueFull)
	assert.False(t, c.isClosing())
}

func TestSendWaitBlocksUntilQueueHasRoom(t *testing.T) {
	c, _ := pipeConn(t, 1, time.Second)
	require.NoError(t, c.Send([]byte("first\n")))

	result := make(chan error, 1)
	go func() { result <- c.SendWait(context.Background(), []byte("second\n")) }()

	select {
	case err := <-result:
		t.Fatalf("SendWait returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, "first\n", string(<-c.send))
	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("SendWait did not resume")
	}
	assert.Equal(t, "second\n", string(<-c.send))
}

func TestSendWaitEndsWhenConnectionCloses(t *testing.T) {
	c, _ := pipeConn(t, 1, time.Second)
	require.NoError(t, c.Send([]byte("first\n")))

	result := make(chan error, 1)
	go func() { result <- c.SendWait(context.Background(), []byte("second\n")) }()

	_ = c.Close()
	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrConnClosed)
	case <-time.After(time.Second):
		t.Fatal("SendWait still blocked after close")
	}
}

func TestStalledWriteDropsConnection(t *testing.T) {
	// nobody reads the client side, so the write hits its deadline
	c, _ := pipeConn(t, 4, 50*time.Millisecond)
	require.NoError(t, c.Send([]byte("never read\n")))

	finished := make(chan struct{})
	go func() {
		c.writeLoop()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("writer did not give up")
	}
	assert.True(t, c.isClosing())
	assert.ErrorIs(t, c.Send([]byte("more\n")), ErrConnClosed)
}
