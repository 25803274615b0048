package connection

// Slot names the engine's three connection roles. route and callee may
// alias the proxy connection when their target address coincides with it.
type Slot int

const (
	SlotProxy Slot = iota
	SlotRoute
	SlotCallee
)

// Manager owns the engine's three connection slots and implements
// ensure_ip_connection's reuse/teardown/backoff/alias rules (§4.3).
type Manager struct {
	kind Kind

	conns   [3]*Connection
	backoff [3]uint32
}

// NewManager returns a Manager that dials kind (UDP or TCP) connections.
func NewManager(kind Kind) *Manager {
	return &Manager{kind: kind}
}

// Get returns the connection currently bound to slot, or nil.
func (m *Manager) Get(slot Slot) *Connection {
	return m.conns[slot]
}

// EnsureIPConnection implements §4.3's ensure_ip_connection. It reuses an
// existing, live, non-stale connection at the same address unless
// forceRenew is set; otherwise it tears down and redials. A non-proxy
// slot targeting the proxy's own (ip, port) aliases the proxy connection
// instead of opening a second socket. A failed dial starts a 10s backoff
// during which further calls are no-ops.
func (m *Manager) EnsureIPConnection(slot Slot, ip string, port int, forceRenew bool, timeoutMs, nowMs uint32) *Connection {
	if slot != SlotProxy {
		if proxy := m.conns[SlotProxy]; proxy != nil && proxy.Connected() &&
			proxy.RemoteIP() == ip && proxy.RemotePort() == port {
			m.conns[slot] = proxy
			return proxy
		}
	}

	existing := m.conns[slot]
	if !forceRenew && existing != nil && existing.Connected() && !existing.Stale() &&
		existing.RemoteIP() == ip && existing.RemotePort() == port {
		return existing
	}

	if int32(nowMs-m.backoff[slot]) < 0 {
		return existing
	}

	if existing != nil {
		existing.Stop()
		m.conns[slot] = nil
	}

	conn, err := Dial(m.kind, ip, port, timeoutMs, nowMs)
	if err != nil {
		m.backoff[slot] = nowMs + BackoffMs
		return nil
	}

	m.conns[slot] = conn
	return conn
}

// Teardown stops and clears every slot, skipping aliases so a shared
// connection is only closed once.
func (m *Manager) Teardown() {
	closed := make(map[*Connection]bool, 3)
	for i, c := range m.conns {
		if c == nil || closed[c] {
			m.conns[i] = nil
			continue
		}
		c.Stop()
		closed[c] = true
		m.conns[i] = nil
	}
}
