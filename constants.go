// Package tinysip implements a single-threaded, cooperatively-scheduled
// SIP user agent core: one poll(now_ms) call drains and parses one
// inbound message, reacts, and returns a bitmask of events to the upper
// layer. It is built for constrained, embedded-style callers that cannot
// afford a goroutine-per-connection SIP stack.
package tinysip

// Wire and resource limits (§6).
const (
	MaxMessageSize  = 2000
	MaxHeaderCount  = 100
	MaxDialogs      = 32
	StaleConnection = 10000 // ms

	T1Ms = 500 // INVITE retransmission base interval

	PingPeriodMs        = 58761
	RegisterPeriodMs    = 60000
	RegisterExpirationS = 60
)

// Connect timeouts (§5).
const (
	InitialConnectTimeoutMs = 500
	ResolveConnectTimeoutMs = 5000
)

// DefaultSIPPort is the well-known SIP port used when a URI carries none.
const DefaultSIPPort = 5060

// UserAgent is the User-Agent header value emitted on every outbound
// request (§4.5).
const UserAgent = "tinySIP/0.6.0alpha"

// timersCheckEveryNPolls amortizes keepalive/registration/retransmission
// timer checks: they are only evaluated when no message is pending, and
// only on every 16th such poll (§5).
const timersCheckEveryNPolls = 16
