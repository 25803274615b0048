// Package connection implements tinySIP's transport abstraction: a single
// dial-out socket (UDP or TCP) per remote peer, with the liveness
// heuristics the engine needs to decide when to tear down and reconnect.
package connection

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// Kind selects the underlying transport for a Connection.
type Kind int

const (
	UDP Kind = iota
	TCP
)

func (k Kind) String() string {
	if k == TCP {
		return "TCP"
	}
	return "UDP"
}

// StaleConnectionMs is the gap between last ping and last pong past which
// an unanswered, twice-pinged connection is considered dead.
const StaleConnectionMs = 10000

// BackoffMs is how long ensure_ip_connection withholds a retry after a
// failed dial.
const BackoffMs = 10000

var ErrNotConnected = errors.New("connection: not connected")

// Connection owns one socket to a single remote peer. It is not safe for
// concurrent use; the engine only ever touches it from its own poll loop.
type Connection struct {
	kind Kind

	remoteIP   string
	remotePort int
	localIP    string
	localPort  int

	conn      net.Conn
	connected bool

	msLastConnected uint32
	msLastReceived  uint32
	msLastPing      uint32
	msLastPong      uint32
	pinged          bool
	rePinged        bool
	everPonged      bool

	backoffUntilMs uint32
}

// Dial opens a new Connection of the given kind to remoteIP:remotePort.
// timeout bounds the dial itself; UDP "dials" never touch the network (a
// connected UDP socket just filters reads/writes to the peer address) so
// timeout only matters for TCP.
func Dial(kind Kind, remoteIP string, remotePort int, timeoutMs uint32, nowMs uint32) (*Connection, error) {
	c := &Connection{
		kind:       kind,
		remoteIP:   remoteIP,
		remotePort: remotePort,
	}

	network := "udp"
	if kind == TCP {
		network = "tcp"
	}

	addr := net.JoinHostPort(remoteIP, strconv.Itoa(remotePort))
	var err error
	if kind == TCP {
		c.conn, err = net.DialTimeout(network, addr, time.Duration(timeoutMs)*time.Millisecond)
	} else {
		c.conn, err = net.Dial(network, addr)
	}
	if err != nil {
		return nil, err
	}

	if local, ok := c.conn.LocalAddr().(*net.UDPAddr); ok {
		c.localIP = local.IP.String()
		c.localPort = local.Port
	} else if local, ok := c.conn.LocalAddr().(*net.TCPAddr); ok {
		c.localIP = local.IP.String()
		c.localPort = local.Port
	}

	c.connected = true
	c.msLastConnected = nowMs
	return c, nil
}

// Stop tears down the socket. The Connection must not be reused afterward.
func (c *Connection) Stop() error {
	c.connected = false
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Connected returns the transport's own connectivity opinion.
func (c *Connection) Connected() bool { return c.connected }

func (c *Connection) Kind() Kind         { return c.kind }
func (c *Connection) RemoteIP() string   { return c.remoteIP }
func (c *Connection) RemotePort() int    { return c.remotePort }
func (c *Connection) LocalPort() int     { return c.localPort }
func (c *Connection) LocalIP() string    { return c.localIP }

// Available reports whether the connection is still marked connected. It
// does not look at the socket; whether data is waiting is only learned by
// calling Read, which never blocks.
func (c *Connection) Available() bool {
	return c.connected
}

// Read drains whatever is currently waiting on the socket into buf,
// non-blocking: it sets an immediate deadline so a call never stalls the
// single-threaded poll loop.
func (c *Connection) Read(buf []byte) (int, error) {
	if !c.connected {
		return 0, ErrNotConnected
	}
	c.conn.SetReadDeadline(time.Now())
	n, err := c.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, nil
		}
		c.connected = false
		return n, err
	}
	return n, nil
}

// Write sends buf in full. For UDP this is a single datagram; for TCP it
// is a stream write. Both transports are wrapped the same way because
// net.Dial already binds the remote peer for UDP sockets, so no separate
// begin_packet/end_packet pairing is required in this Go rendition.
func (c *Connection) Write(buf []byte) (int, error) {
	if !c.connected {
		return 0, ErrNotConnected
	}
	n, err := c.conn.Write(buf)
	if err != nil {
		c.connected = false
	}
	return n, err
}

// NotePing records that a keepalive ping was just sent.
func (c *Connection) NotePing(nowMs uint32) {
	if c.pinged {
		c.rePinged = true
	}
	c.pinged = true
	c.msLastPing = nowMs
}

// NotePong records that a keepalive pong was just received.
func (c *Connection) NotePong(nowMs uint32) {
	c.everPonged = true
	c.pinged = false
	c.rePinged = false
	c.msLastPong = nowMs
}

// NoteReceived records that any application data was just received.
func (c *Connection) NoteReceived(nowMs uint32) {
	c.msLastReceived = nowMs
}

// Stale reports whether this connection should be considered dead: it has
// been pinged twice since the last pong, and the gap between the last
// ping and the last pong exceeds StaleConnectionMs.
func (c *Connection) Stale() bool {
	if !(c.everPonged && c.pinged && c.rePinged) {
		return false
	}
	return int32(c.msLastPing-c.msLastPong) > StaleConnectionMs
}
