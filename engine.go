package tinysip

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/wiphone/tinysip/connection"
	"github.com/wiphone/tinysip/dialog"
)

// TextMessage is a transient inbound MESSAGE body, handed to the upper
// layer via CheckMessage (§3 "Text message").
type TextMessage struct {
	Body    string
	From    string
	To      string
	CaptureMs uint32
}

// Engine is tinySIP's single-threaded SIP user agent core (§4.5-§4.9).
// The call and message actions (StartCall, AcceptCall, DeclineCall,
// TerminateCall, SendMessage) each synchronously send one message; Poll is
// the only entry point that reads from the network.
type Engine struct {
	cfg Config
	log interface {
		Error(msg string, args ...any)
		Debug(msg string, args ...any)
		Info(msg string, args ...any)
	}

	conns   *connection.Manager
	dialogs *dialog.Table

	recvBuf []byte
	bufLen  int

	instanceUUID string
	localTag     string

	regCallID string
	msgCallID string

	regCSeq  int32
	callCSeq int32
	nc       uint32

	registered            bool
	registrationRequested bool
	msLastRegistered      uint32
	msLastRegisterRequest uint32

	msLastPing uint32

	proxyIP   string
	proxyPort int

	pollCount uint32

	current       *dialog.Dialog
	currentCallID string
	inviteBranch  string
	pendingInvite *ParsedMessage
	timerAStart   uint32
	timerADur     uint32
	sdpSessionID  uint64

	// cancelBytes holds the last CANCEL sent over UDP so checkTimers can
	// retransmit it verbatim with Timer A semantics until a response
	// arrives (§9 Open Question 3).
	cancelBytes      []byte
	cancelTimerStart uint32
	cancelTimerDur   uint32

	remoteAudioAddr   string
	remoteAudioPort   int
	remoteAudioFormat int

	reason     string
	remoteName string
	remoteURI  string

	lastChallengeCSeq map[string]int32

	pendingText []TextMessage
}

// NewEngine constructs an Engine. Init must still be called to resolve
// and attach the proxy connection before Poll is driven.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Codecs == nil {
		cfg.Codecs = DefaultCodecs()
	}

	instanceUUID, err := contactInstanceUUID(cfg.MAC)
	if err != nil {
		return nil, fmt.Errorf("tinysip: deriving instance uuid: %w", err)
	}
	localTag, err := newTag()
	if err != nil {
		return nil, err
	}
	regCallID, err := newCallID()
	if err != nil {
		return nil, err
	}
	msgCallID, err := newCallID()
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:               cfg,
		log:               DefaultLogger(),
		conns:             connection.NewManager(cfg.Transport),
		dialogs:           dialog.NewTable(),
		recvBuf:           make([]byte, MaxMessageSize),
		instanceUUID:      instanceUUID.String(),
		localTag:          localTag,
		regCallID:         regCallID,
		msgCallID:         msgCallID,
		regCSeq:           0,
		callCSeq:          0,
		lastChallengeCSeq: make(map[string]int32),
	}, nil
}

// Init resolves the proxy host to an IP (A records only — §9 open
// question 4) and opens the initial proxy connection.
func (e *Engine) Init(ctx context.Context, nowMs uint32) error {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, e.cfg.ProxyHost)
	if err != nil {
		return fmt.Errorf("tinysip: resolving proxy host %q: %w", e.cfg.ProxyHost, err)
	}
	var ip string
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			ip = v4.String()
			break
		}
	}
	if ip == "" {
		return fmt.Errorf("tinysip: no A record for proxy host %q", e.cfg.ProxyHost)
	}

	e.proxyIP = ip
	e.proxyPort = e.cfg.ProxyPort
	if e.proxyPort == 0 {
		e.proxyPort = DefaultSIPPort
	}

	conn := e.conns.EnsureIPConnection(connection.SlotProxy, e.proxyIP, e.proxyPort, false, InitialConnectTimeoutMs, nowMs)
	if conn == nil {
		return fmt.Errorf("tinysip: connecting to proxy %s:%d", e.proxyIP, e.proxyPort)
	}

	// Back-date so the first checkTimers call after Init registers right
	// away instead of waiting a full RegisterPeriodMs from the zero value.
	e.msLastRegisterRequest = nowMs - RegisterPeriodMs - 1
	return nil
}

func (e *Engine) localIP() string {
	conn := e.conns.Get(connection.SlotProxy)
	if conn == nil {
		return ""
	}
	return conn.LocalIP()
}

func (e *Engine) localPort() int {
	conn := e.conns.Get(connection.SlotProxy)
	if conn == nil {
		return 0
	}
	return conn.LocalPort()
}

// fromURI builds the local party's address of record: the configured
// username at the proxy's own domain, since tinySIP has no separate
// registrar-domain setting (§6 "from_uri").
func (e *Engine) fromURI() string {
	return "sip:" + e.cfg.User + "@" + e.cfg.ProxyHost
}

func (e *Engine) transportName() string {
	if e.cfg.Transport == connection.TCP {
		return "TCP"
	}
	return "UDP"
}

// Poll drains and reacts to at most one inbound message, then — if no
// message was pending — checks keepalive/registration timers every 16th
// call (§5).
func (e *Engine) Poll(nowMs uint32) Events {
	events := EventNone

	proxy := e.conns.Get(connection.SlotProxy)
	if proxy == nil || !proxy.Connected() {
		proxy = e.conns.EnsureIPConnection(connection.SlotProxy, e.proxyIP, e.proxyPort, false, ResolveConnectTimeoutMs, nowMs)
		if proxy == nil {
			return events | EventConnectionError
		}
	}

	if proxy.Stale() {
		proxy = e.conns.EnsureIPConnection(connection.SlotProxy, e.proxyIP, e.proxyPort, true, ResolveConnectTimeoutMs, nowMs)
		if proxy == nil {
			return events | EventConnectionError
		}
	}

	n, err := proxy.Read(e.recvBuf[e.bufLen:])
	if err != nil {
		e.log.Error("proxy read failed", "error", err)
		return events | EventConnectionError
	}
	if n > 0 {
		proxy.NoteReceived(nowMs)
		e.bufLen += n
	}

	if e.bufLen == 0 {
		e.pollCount++
		if e.pollCount%timersCheckEveryNPolls == 0 {
			events |= e.checkTimers(nowMs)
		}
		return events
	}

	msg, consumed, err := ParseMessage(e.recvBuf[:e.bufLen])
	if err != nil {
		e.log.Debug("dropping malformed message", "error", err)
		e.bufLen = 0
		return events | EventSIPError
	}
	if consumed == 0 {
		// Not enough bytes yet for a full message.
		if e.bufLen == len(e.recvBuf) {
			e.compactBuffer()
		}
		return events | EventMoreBuffer
	}

	remaining := e.bufLen - consumed
	copy(e.recvBuf, e.recvBuf[consumed:e.bufLen])
	e.bufLen = remaining

	if msg.IsPong {
		proxy.NotePong(nowMs)
		return events | EventPonged
	}

	if msg.IsResponse {
		events |= e.handleResponse(msg, nowMs)
	} else {
		events |= e.handleRequest(msg, nowMs)
	}

	return events
}

func (e *Engine) compactBuffer() {
	e.bufLen = 0
}

func (e *Engine) checkTimers(nowMs uint32) Events {
	events := EventNone

	if !e.registered || int32(nowMs-e.msLastRegistered) > RegisterExpirationS*1000 {
		if int32(nowMs-e.msLastRegisterRequest) > RegisterPeriodMs {
			e.sendRegister(nowMs)
		}
	} else {
		if int32(nowMs-e.msLastPing) > PingPeriodMs {
			if proxy := e.conns.Get(connection.SlotProxy); proxy != nil {
				proxy.Write([]byte("\r\n\r\n"))
				proxy.NotePing(nowMs)
				e.msLastPing = nowMs
			}
		}
	}

	if e.callState() == CallInviting && e.timerAStart != 0 {
		if int32(nowMs-e.timerAStart) > int32(e.timerADur) {
			e.timerADur *= 2
			if e.timerADur > 32*T1Ms {
				if e.current != nil {
					e.current.Terminate(nowMs)
				}
				events |= EventInviteTimeout | EventCallTerminated
				e.timerAStart = 0
			} else if e.cfg.Transport == connection.UDP {
				e.retransmitInvite(nowMs)
				e.timerAStart = nowMs
			}
		}
	}

	if e.cancelBytes != nil && int32(nowMs-e.cancelTimerStart) > int32(e.cancelTimerDur) {
		e.cancelTimerDur *= 2
		if e.cancelTimerDur > 32*T1Ms {
			e.cancelBytes = nil
		} else {
			e.writeProxy(e.cancelBytes)
			e.cancelTimerStart = nowMs
		}
	}

	return events
}

func proxyURI(host string, port int) string {
	if port == DefaultSIPPort || port == 0 {
		return "sip:" + host
	}
	return "sip:" + host + ":" + strconv.Itoa(port)
}
