package tinysip

import (
	"fmt"

	"github.com/wiphone/tinysip/connection"
	"github.com/wiphone/tinysip/dialog"
	"github.com/wiphone/tinysip/sip"
)

// CallState is the per-call state machine of §4.9. Only one call is
// "current" at a time.
type CallState int

const (
	CallIdle CallState = iota
	CallInviting
	CallRinging
	CallConfirmed
	CallTerminated
)

var ErrNoCurrentCall = fmt.Errorf("tinysip: no current call")
var ErrBusy = fmt.Errorf("tinysip: already on a call")

func (e *Engine) callState() CallState {
	if e.current == nil {
		if e.currentCallID == "" {
			return CallIdle
		}
		if e.timerAStart != 0 {
			return CallInviting
		}
		return CallIdle
	}
	switch e.current.State {
	case dialog.StateEarly:
		return CallRinging
	case dialog.StateConfirmed:
		return CallConfirmed
	case dialog.StateTerminated:
		return CallTerminated
	default:
		return CallInviting
	}
}

// StartCall sends an INVITE to toURI, outside any dialog (§4.5, §6).
func (e *Engine) StartCall(toURI string, nowMs uint32) error {
	if s := e.callState(); s == CallInviting || s == CallRinging || s == CallConfirmed {
		return ErrBusy
	}

	callID, err := newCallID()
	if err != nil {
		return err
	}
	branch := sip.GenerateBranch()
	e.callCSeq++
	e.sdpSessionID++

	e.currentCallID = callID
	e.inviteBranch = branch
	e.current = nil
	e.timerAStart = nowMs
	e.timerADur = T1Ms
	e.remoteAudioAddr = ""
	e.remoteAudioPort = 0
	e.remoteAudioFormat = -1
	e.reason = ""
	e.remoteURI = toURI

	localPort := InviteAudioPort(e.sdpSessionID)
	body := sdpOfferBody(e.localIP(), localPort, e.sdpSessionID, e.cfg.Codecs)

	req := RequestParams{
		Method:       "INVITE",
		RequestURI:   toURI,
		LocalIP:      e.localIP(),
		LocalPort:    e.localPort(),
		Transport:    e.transportName(),
		Branch:       branch,
		CallID:       callID,
		CSeq:         e.callCSeq,
		FromDisplay:  e.cfg.DisplayName,
		FromURI:      e.fromURI(),
		FromTag:      e.localTag,
		ToDisplay:    "",
		ToURI:        toURI,
		ContactURI:   fmt.Sprintf("sip:%s@%s:%d", e.cfg.User, e.localIP(), e.localPort()),
		InstanceUUID: e.instanceUUID,
		Body:         body,
		ContentType:  "application/sdp",
	}

	return e.writeProxy(BuildRequest(req))
}

// AcceptCall sends 200 OK with an SDP answer for the current incoming
// call (the INVITE captured by the preceding EventIncomingCall).
func (e *Engine) AcceptCall(nowMs uint32) error {
	if e.current == nil || e.pendingInvite == nil {
		return ErrNoCurrentCall
	}
	localPort := InviteAudioPort(e.sdpSessionID)
	body := sdpOfferBody(e.localIP(), localPort, e.sdpSessionID, e.cfg.Codecs)
	contact := fmt.Sprintf("sip:%s@%s:%d", e.cfg.User, e.localIP(), e.localPort())

	resp := BuildResponse(e.pendingInvite, 200, "OK", e.current.ID.LocalTag, contact, body, "application/sdp")
	e.current.Confirm(nowMs)
	e.pendingInvite = nil
	return e.writeProxy(resp)
}

// DeclineCall sends 603 Decline and terminates the current dialog.
func (e *Engine) DeclineCall(nowMs uint32) error {
	if e.current == nil || e.pendingInvite == nil {
		return ErrNoCurrentCall
	}
	resp := BuildResponse(e.pendingInvite, 603, "Decline", e.current.ID.LocalTag, "", nil, "")
	e.current.Terminate(nowMs)
	e.pendingInvite = nil
	return e.writeProxy(resp)
}

// TerminateCall sends CANCEL (pre-200) or BYE (post-200) for the current
// call, per §5's cancellation rule: the dialog is marked terminated
// unconditionally, even before the peer confirms.
func (e *Engine) TerminateCall(nowMs uint32) error {
	switch e.callState() {
	case CallInviting, CallRinging:
		req := RequestParams{
			Method:      "CANCEL",
			RequestURI:  e.remoteURI,
			LocalIP:     e.localIP(),
			LocalPort:   e.localPort(),
			Transport:   e.transportName(),
			Branch:      e.inviteBranch,
			CallID:      e.currentCallID,
			CSeq:        e.callCSeq,
			FromDisplay: e.cfg.DisplayName,
			FromURI:     e.fromURI(),
			FromTag:     e.localTag,
			ToURI:       e.remoteURI,
		}
		if e.current != nil {
			e.current.Terminate(nowMs)
		}
		e.timerAStart = 0

		data := BuildRequest(req)
		if e.cfg.Transport == connection.UDP {
			e.cancelBytes = data
			e.cancelTimerStart = nowMs
			e.cancelTimerDur = T1Ms
		}
		return e.writeProxy(data)

	case CallConfirmed:
		if e.current == nil {
			return ErrNoCurrentCall
		}
		e.current.LocalCSeq++
		req := RequestParams{
			Method:       "BYE",
			RequestURI:   e.current.RemoteTarget,
			LocalIP:      e.localIP(),
			LocalPort:    e.localPort(),
			Transport:    e.transportName(),
			Branch:       sip.GenerateBranch(),
			CallID:       e.currentCallID,
			CSeq:         e.current.LocalCSeq,
			FromDisplay:  e.cfg.DisplayName,
			FromURI:      e.current.LocalURI,
			FromTag:      e.localTag,
			ToDisplay:    e.current.RemoteDisplayName,
			ToURI:        e.current.RemoteURI,
			ToTag:        e.current.ID.RemoteTag,
			Route:        routeList(e.current.RouteSet),
		}
		e.current.Terminate(nowMs)
		return e.writeProxy(BuildRequest(req))

	default:
		return ErrNoCurrentCall
	}
}

func (e *Engine) currentRequestURI() string {
	if e.current != nil && e.current.RemoteTarget != "" {
		return e.current.RemoteTarget
	}
	return e.remoteURI
}

// SendMessage sends a MESSAGE outside any dialog.
func (e *Engine) SendMessage(toURI, text string) error {
	req := RequestParams{
		Method:      "MESSAGE",
		RequestURI:  toURI,
		LocalIP:     e.localIP(),
		LocalPort:   e.localPort(),
		Transport:   e.transportName(),
		Branch:      sip.GenerateBranch(),
		CallID:      e.msgCallID,
		CSeq:        e.callCSeq,
		FromDisplay: e.cfg.DisplayName,
		FromURI:     e.fromURI(),
		FromTag:     e.localTag,
		ToURI:       toURI,
		Body:        []byte(text),
		ContentType: "text/plain",
	}
	return e.writeProxy(BuildRequest(req))
}

// CheckMessage pops the next queued inbound text message, if any.
func (e *Engine) CheckMessage() *TextMessage {
	if len(e.pendingText) == 0 {
		return nil
	}
	m := e.pendingText[0]
	e.pendingText = e.pendingText[1:]
	return &m
}

func (e *Engine) RemoteAudioAddr() string { return e.remoteAudioAddr }
func (e *Engine) RemoteAudioPort() int    { return e.remoteAudioPort }
func (e *Engine) AudioFormat() int        { return e.remoteAudioFormat }
func (e *Engine) Reason() string     { return e.reason }
func (e *Engine) RemoteName() string { return e.remoteName }
func (e *Engine) RemoteURI() string  { return e.remoteURI }

func (e *Engine) writeProxy(data []byte) error {
	proxy := e.conns.Get(connection.SlotProxy)
	if proxy == nil {
		return connection.ErrNotConnected
	}
	_, err := proxy.Write(data)
	return err
}

func routeList(rs sip.RouteSet) []string {
	out := make([]string, rs.Len())
	for i := range out {
		out[i] = rs.At(i)
	}
	return out
}

// handleResponse dispatches an inbound response by its CSeq method.
func (e *Engine) handleResponse(msg *ParsedMessage, nowMs uint32) Events {
	switch msg.CSeqMethod {
	case "REGISTER":
		return e.handleRegisterResponse(msg, nowMs)
	case "INVITE":
		return e.handleInviteResponse(msg, nowMs)
	case "BYE":
		if msg.StatusCode >= 200 && msg.StatusCode < 300 {
			return EventCallTerminated | EventResponseParsed
		}
		return EventResponseParsed
	case "CANCEL":
		e.cancelBytes = nil
		return EventResponseParsed
	case "MESSAGE":
		return e.handleMessageResponse(msg, nowMs)
	default:
		return EventResponseParsed
	}
}

func (e *Engine) handleRegisterResponse(msg *ParsedMessage, nowMs uint32) Events {
	switch {
	case msg.StatusCode == 200:
		e.registered = true
		e.registrationRequested = false
		e.msLastRegistered = nowMs
		return EventRegistered | EventResponseParsed

	case msg.StatusCode == 401 || msg.StatusCode == 407:
		if e.tryAuthRetry(msg, "REGISTER", nowMs, e.regCSeq, e.regCallID, proxyURI(e.cfg.ProxyHost, 0)) {
			return EventResponseParsed
		}
		return EventSIPError | EventResponseParsed

	default:
		return EventSIPError | EventResponseParsed
	}
}

func (e *Engine) handleMessageResponse(msg *ParsedMessage, nowMs uint32) Events {
	if msg.StatusCode == 401 || msg.StatusCode == 407 {
		e.tryAuthRetry(msg, "MESSAGE", nowMs, e.callCSeq, e.msgCallID, "")
	}
	return EventResponseParsed
}

func (e *Engine) handleInviteResponse(msg *ParsedMessage, nowMs uint32) Events {
	if msg.CallID != e.currentCallID {
		return EventResponseParsed
	}

	switch {
	case msg.StatusCode < 200 && msg.StatusCode >= 180:
		tag := msg.To.Tag()
		if tag != "" && e.current == nil {
			e.seedCurrentDialog(msg, tag, nowMs)
			e.current.MarkEarly(nowMs)
		}
		e.remoteName = msg.To.DisplayName
		e.remoteURI = msg.To.AddrSpec
		return EventRinging | EventResponseParsed

	case msg.StatusCode < 200:
		return EventResponseParsed

	case msg.StatusCode < 300:
		tag := msg.To.Tag()
		if e.current == nil {
			e.seedCurrentDialog(msg, tag, nowMs)
		}
		e.current.Confirm(nowMs)
		e.current.RemoteTarget = msg.Contact
		e.timerAStart = 0

		if msg.ContentType == "application/sdp" && len(msg.Body) > 0 {
			if ans, err := sip.ParseOfferAnswer(msg.Body, e.cfg.Codecs); err == nil {
				e.remoteAudioAddr = ans.RemoteAddr
				e.remoteAudioPort = ans.RemotePort
				e.remoteAudioFormat = ans.PayloadType
			}
		}

		e.sendAckFor2xx(msg)
		return EventCallConfirmed | EventResponseParsed

	default:
		if msg.StatusCode == 401 || msg.StatusCode == 407 || msg.StatusCode == 491 {
			if e.tryAuthRetry(msg, "INVITE", nowMs, e.callCSeq, e.currentCallID, e.remoteURI) {
				return EventResponseParsed
			}
		}
		e.sendAckForFailure(msg)
		if e.current != nil {
			e.current.Terminate(nowMs)
		}
		e.reason = msg.ReasonPhrase
		e.timerAStart = 0
		e.cancelBytes = nil
		return EventCallTerminated | EventResponseParsed
	}
}

func (e *Engine) seedCurrentDialog(msg *ParsedMessage, remoteTag string, nowMs uint32) {
	id := dialog.NewID(e.currentCallID, e.localTag, remoteTag)
	e.current = e.dialogs.FindOrCreate(id, true, nowMs, func(d *dialog.Dialog) {
		d.LocalURI = e.fromURI()
		d.LocalDisplayName = e.cfg.DisplayName
		d.RemoteURI = msg.To.AddrSpec
		d.RemoteDisplayName = msg.To.DisplayName
		d.LocalCSeq = e.callCSeq
		d.RemoteCSeq = -1
		d.RemoteTarget = msg.Contact
		d.RouteSet = msg.RouteSet.Copy()
	})
}

// sendAckFor2xx builds the post-2xx ACK: fresh branch, Request-URI from
// the parsed Contact, route-set from the dialog (§4.5 ACK rule).
func (e *Engine) sendAckFor2xx(msg *ParsedMessage) {
	target := msg.Contact
	if target == "" {
		target = e.remoteURI
	}
	req := RequestParams{
		Method:      "ACK",
		RequestURI:  target,
		LocalIP:     e.localIP(),
		LocalPort:   e.localPort(),
		Transport:   e.transportName(),
		Branch:      sip.GenerateBranch(),
		CallID:      e.currentCallID,
		CSeq:        e.callCSeq,
		FromDisplay: e.cfg.DisplayName,
		FromURI:     e.fromURI(),
		FromTag:     e.localTag,
		ToDisplay:   msg.To.DisplayName,
		ToURI:       msg.To.AddrSpec,
		ToTag:       msg.To.Tag(),
	}
	if e.current != nil {
		req.Route = routeList(e.current.RouteSet)
	}
	e.writeProxy(BuildRequest(req))
}

// sendAckForFailure builds the ACK to a non-2xx final response. Per
// RFC 3261 §17.1.1.3 this reuses the INVITE's own branch and CSeq number,
// since a non-2xx ACK belongs to the same client transaction rather than
// starting a new one (the 2xx-ACK path in sendAckFor2xx is the exception).
func (e *Engine) sendAckForFailure(msg *ParsedMessage) {
	req := RequestParams{
		Method:      "ACK",
		RequestURI:  e.remoteURI,
		LocalIP:     e.localIP(),
		LocalPort:   e.localPort(),
		Transport:   e.transportName(),
		Branch:      e.inviteBranch,
		CallID:      e.currentCallID,
		CSeq:        e.callCSeq,
		FromDisplay: e.cfg.DisplayName,
		FromURI:     e.fromURI(),
		FromTag:     e.localTag,
		ToDisplay:   msg.To.DisplayName,
		ToURI:       msg.To.AddrSpec,
		ToTag:       msg.To.Tag(),
	}
	e.writeProxy(BuildRequest(req))
}

func (e *Engine) retransmitInvite(nowMs uint32) {
	localPort := InviteAudioPort(e.sdpSessionID)
	body := sdpOfferBody(e.localIP(), localPort, e.sdpSessionID, e.cfg.Codecs)
	req := RequestParams{
		Method:       "INVITE",
		RequestURI:   e.remoteURI,
		LocalIP:      e.localIP(),
		LocalPort:    e.localPort(),
		Transport:    e.transportName(),
		Branch:       e.inviteBranch,
		CallID:       e.currentCallID,
		CSeq:         e.callCSeq,
		FromDisplay:  e.cfg.DisplayName,
		FromURI:      e.fromURI(),
		FromTag:      e.localTag,
		ToURI:        e.remoteURI,
		ContactURI:   fmt.Sprintf("sip:%s@%s:%d", e.cfg.User, e.localIP(), e.localPort()),
		InstanceUUID: e.instanceUUID,
		Body:         body,
		ContentType:  "application/sdp",
	}
	e.writeProxy(BuildRequest(req))
}

// tryAuthRetry computes Digest credentials for a challenge and retries
// the originating request, guarding against endless re-challenge by only
// retrying once per CSeq (§4.8, §7).
func (e *Engine) tryAuthRetry(msg *ParsedMessage, method string, nowMs uint32, cseq int32, callID, requestURI string) bool {
	if msg.Challenge == nil {
		return false
	}
	if last, ok := e.lastChallengeCSeq[method]; ok && last == cseq {
		return false
	}
	e.lastChallengeCSeq[method] = cseq

	qop := msg.Challenge.SelectQop()
	e.nc++
	cnonce := sip.GenerateTagN(6)

	cred := sip.ComputeCredentials(sip.DigestParams{
		Method:    method,
		URI:       requestURI,
		Username:  e.cfg.User,
		Password:  e.cfg.Password,
		Challenge: msg.Challenge,
		Qop:       qop,
		NC:        e.nc,
		Cnonce:    cnonce,
	})

	authHeader := cred.String()

	var req RequestParams
	switch method {
	case "REGISTER":
		e.regCSeq++
		req = e.registerParams()
	case "INVITE":
		// Per RFC 3261 §22.2 and §9 Open Question 2, the retried INVITE
		// reuses the challenged request's own CSeq number; only the Via
		// branch is fresh, since this is still logically the same request.
		req = RequestParams{
			Method:       "INVITE",
			RequestURI:   requestURI,
			LocalIP:      e.localIP(),
			LocalPort:    e.localPort(),
			Transport:    e.transportName(),
			Branch:       sip.GenerateBranch(),
			CallID:       callID,
			CSeq:         e.callCSeq,
			FromDisplay:  e.cfg.DisplayName,
			FromURI:      e.fromURI(),
			FromTag:      e.localTag,
			ToURI:        requestURI,
			ContactURI:   fmt.Sprintf("sip:%s@%s:%d", e.cfg.User, e.localIP(), e.localPort()),
			InstanceUUID: e.instanceUUID,
			Body:         sdpOfferBody(e.localIP(), InviteAudioPort(e.sdpSessionID), e.sdpSessionID, e.cfg.Codecs),
			ContentType:  "application/sdp",
		}
		e.inviteBranch = req.Branch
		e.timerAStart = nowMs
		e.timerADur = T1Ms
	case "MESSAGE":
		req = RequestParams{
			Method:      "MESSAGE",
			RequestURI:  requestURI,
			LocalIP:     e.localIP(),
			LocalPort:   e.localPort(),
			Transport:   e.transportName(),
			Branch:      sip.GenerateBranch(),
			CallID:      callID,
			CSeq:        e.callCSeq,
			FromDisplay: e.cfg.DisplayName,
			FromURI:     e.fromURI(),
			FromTag:     e.localTag,
			ToURI:       requestURI,
		}
	default:
		return false
	}

	if msg.StatusCode == 407 {
		req.ProxyAuthorization = authHeader
	} else {
		req.Authorization = authHeader
	}

	e.writeProxy(BuildRequest(req))
	return true
}

func (e *Engine) registerParams() RequestParams {
	target := proxyURI(e.cfg.ProxyHost, 0)
	return RequestParams{
		Method:       "REGISTER",
		RequestURI:   target,
		LocalIP:      e.localIP(),
		LocalPort:    e.localPort(),
		Transport:    e.transportName(),
		Branch:       sip.GenerateBranch(),
		CallID:       e.regCallID,
		CSeq:         e.regCSeq,
		FromDisplay:  e.cfg.DisplayName,
		FromURI:      e.fromURI(),
		FromTag:      e.localTag,
		ToURI:        e.fromURI(),
		ContactURI:   fmt.Sprintf("sip:%s@%s:%d", e.cfg.User, e.localIP(), e.localPort()),
		InstanceUUID: e.instanceUUID,
	}
}

func (e *Engine) sendRegister(nowMs uint32) {
	e.regCSeq++
	if e.regCSeq > 60000 {
		e.regCSeq = 1
	}
	req := e.registerParams()
	e.registrationRequested = true
	e.msLastRegisterRequest = nowMs
	e.writeProxy(BuildRequest(req))
}

// handleRequest dispatches an inbound request per §4.9.
func (e *Engine) handleRequest(msg *ParsedMessage, nowMs uint32) Events {
	switch msg.Method {
	case "INVITE":
		return e.handleIncomingInvite(msg, nowMs)
	case "BYE":
		return e.handleIncomingBye(msg, nowMs)
	case "MESSAGE":
		return e.handleIncomingMessage(msg, nowMs)
	case "CANCEL":
		return e.handleIncomingCancel(msg, nowMs)
	default:
		return EventRequestParsed
	}
}

func (e *Engine) handleIncomingInvite(msg *ParsedMessage, nowMs uint32) Events {
	busy := e.current != nil && (e.current.State == dialog.StateEarly || e.current.State == dialog.StateConfirmed) && !e.current.Terminated()

	if busy {
		tag, _ := newTag()
		id := dialog.NewID(msg.CallID, tag, msg.From.Tag())
		d := e.dialogs.FindOrCreate(id, false, nowMs, func(d *dialog.Dialog) {
			d.LocalURI = e.fromURI()
			d.LocalDisplayName = e.cfg.DisplayName
			d.RemoteURI = msg.From.AddrSpec
			d.RemoteDisplayName = msg.From.DisplayName
			d.LocalCSeq = -1
			d.RemoteCSeq = msg.CSeqNum
			d.RemoteTarget = msg.Contact
			d.RouteSet = msg.RouteSet.Copy()
		})
		d.Terminate(nowMs)

		resp := BuildResponse(msg, 486, "Busy Here", tag, "", nil, "")
		e.writeProxy(resp)
		return EventRequestParsed
	}

	if msg.ContentType == "application/sdp" && len(msg.Body) > 0 {
		if _, err := sip.ParseOfferAnswer(msg.Body, e.cfg.Codecs); err != nil {
			resp := BuildResponse(msg, 488, "Not Acceptable Here", "", "", nil, "")
			e.writeProxy(resp)
			return EventCallTerminated | EventSIPError | EventRequestParsed
		}
	}

	tag, _ := newTag()
	id := dialog.NewID(msg.CallID, tag, msg.From.Tag())
	d := e.dialogs.FindOrCreate(id, false, nowMs, func(d *dialog.Dialog) {
		d.LocalURI = e.fromURI()
		d.LocalDisplayName = e.cfg.DisplayName
		d.RemoteURI = msg.From.AddrSpec
		d.RemoteDisplayName = msg.From.DisplayName
		d.LocalCSeq = -1
		d.RemoteCSeq = msg.CSeqNum
		d.RemoteTarget = msg.Contact
		d.RouteSet = msg.RouteSet.Copy()
	})
	d.MarkEarly(nowMs)

	e.current = d
	e.currentCallID = msg.CallID
	e.pendingInvite = msg
	e.remoteName = msg.From.DisplayName
	e.remoteURI = msg.From.AddrSpec

	resp := BuildResponse(msg, 180, "Ringing", tag, "", nil, "")
	e.writeProxy(resp)
	return EventIncomingCall | EventRequestParsed
}

func (e *Engine) handleIncomingBye(msg *ParsedMessage, nowMs uint32) Events {
	d := e.findDialogEitherDirection(msg)
	if d == nil || d.Terminated() {
		resp := BuildResponse(msg, 481, "Call/Transaction Does Not Exist", "", "", nil, "")
		e.writeProxy(resp)
		return EventRequestParsed
	}

	d.Terminate(nowMs)
	resp := BuildResponse(msg, 200, "OK", "", "", nil, "")
	e.writeProxy(resp)
	return EventCallTerminated | EventRequestParsed
}

func (e *Engine) handleIncomingCancel(msg *ParsedMessage, nowMs uint32) Events {
	d := e.findDialogEitherDirection(msg)
	resp := BuildResponse(msg, 200, "OK", "", "", nil, "")
	e.writeProxy(resp)
	if d != nil {
		d.Terminate(nowMs)
	}
	return EventCallTerminated | EventRequestParsed
}

func (e *Engine) handleIncomingMessage(msg *ParsedMessage, nowMs uint32) Events {
	resp := BuildResponse(msg, 200, "OK", "", "", nil, "")
	e.writeProxy(resp)

	e.pendingText = append(e.pendingText, TextMessage{
		Body:      string(msg.Body),
		From:      msg.From.AddrSpec,
		To:        msg.To.AddrSpec,
		CaptureMs: nowMs,
	})
	return EventIncomingMessage | EventRequestParsed
}

// findDialogEitherDirection locates a dialog matching msg's Call-ID under
// both directional interpretations of From/To tags, since a BYE/CANCEL
// may arrive from either UAC or UAS role (§4.9).
func (e *Engine) findDialogEitherDirection(msg *ParsedMessage) *dialog.Dialog {
	asUAC := dialog.NewID(msg.CallID, msg.To.Tag(), msg.From.Tag())
	if d := e.dialogs.Find(asUAC); d != nil {
		return d
	}
	asUAS := dialog.NewID(msg.CallID, msg.From.Tag(), msg.To.Tag())
	return e.dialogs.Find(asUAS)
}
