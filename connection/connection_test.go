package connection

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPipeConnection wraps one end of an in-memory net.Pipe as a
// Connection, bypassing Dial's real socket setup, the way the teacher's
// fakes package wraps a net.Conn for its TCPConn test double.
func newPipeConnection(kind Kind, conn net.Conn) *Connection {
	return &Connection{
		kind:      kind,
		conn:      conn,
		connected: true,
	}
}

func TestConnectionStaleRequiresPingPongSequence(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	c := newPipeConnection(TCP, client)

	assert.False(t, c.Stale(), "never ponged")

	c.NotePong(1000)
	c.NotePing(2000)
	assert.False(t, c.Stale(), "only pinged once since pong")

	c.NotePing(3000)
	assert.False(t, c.Stale(), "gap not yet past threshold")
}

func TestConnectionStaleAfterTwoUnansweredPings(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	c := newPipeConnection(UDP, client)

	c.NotePong(0)
	c.NotePing(1000)
	c.NotePing(12000)

	assert.True(t, c.Stale(), "twice pinged, gap exceeds StaleConnectionMs")
}

func TestConnectionPongResetsPingFlags(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	c := newPipeConnection(UDP, client)

	c.NotePong(0)
	c.NotePing(1000)
	c.NotePing(12000)
	require.True(t, c.Stale())

	c.NotePong(12500)
	assert.False(t, c.Stale())
}

func TestConnectionWriteReadRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cc := newPipeConnection(TCP, client)

	done := make(chan struct{})
	go func() {
		n, err := cc.Write([]byte("hello"))
		require.NoError(t, err)
		require.Equal(t, 5, n)
		close(done)
	}()

	buf := make([]byte, 16)
	n, err := server.Read(buf)
	<-done
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestConnectionWriteAfterStopFails(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	c := newPipeConnection(TCP, client)
	require.NoError(t, c.Stop())

	_, err := c.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "UDP", UDP.String())
	assert.Equal(t, "TCP", TCP.String())
}
