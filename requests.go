package tinysip

import (
	"fmt"
	"strings"

	"github.com/wiphone/tinysip/sip"
)

// RequestParams carries everything a builder needs beyond the engine's own
// globals: the per-request target, dialog context (if any), and whatever
// varies per method (§4.5).
type RequestParams struct {
	Method     string
	RequestURI string // used as given; callers pick the target

	LocalIP   string
	LocalPort int
	Transport string // "UDP" or "TCP"

	Branch string // used as given; callers supply a fresh one per transaction

	CallID       string
	CSeq         int32
	FromDisplay  string
	FromURI      string
	FromTag      string
	ToDisplay    string
	ToURI        string
	ToTag        string // empty outside a dialog / before a to-tag is learned
	ContactURI   string
	InstanceUUID string

	Route []string // rendered in order, already direction-resolved

	Authorization      string // full "Digest ..." value, or ""
	ProxyAuthorization string

	Body        []byte
	ContentType string
}

// BuildRequest renders a full SIP request per the shared header rules of
// §4.5: Request-Line, Via, Max-Forwards, Route, From/To, Call-ID, CSeq,
// Contact, User-Agent, (Proxy-)Authorization, Content-Type/-Length.
func BuildRequest(p RequestParams) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s SIP/2.0\r\n", p.Method, p.RequestURI)
	fmt.Fprintf(&b, "Via: SIP/2.0/%s %s:%d;rport;branch=%s;alias\r\n", p.Transport, p.LocalIP, p.LocalPort, p.Branch)
	b.WriteString("Max-Forwards: 70\r\n")

	for _, r := range p.Route {
		fmt.Fprintf(&b, "Route: <%s>\r\n", r)
	}

	fmt.Fprintf(&b, "From: \"%s\" <%s>;tag=%s\r\n", p.FromDisplay, p.FromURI, p.FromTag)
	if p.ToTag != "" {
		fmt.Fprintf(&b, "To: \"%s\" <%s>;tag=%s\r\n", p.ToDisplay, p.ToURI, p.ToTag)
	} else {
		fmt.Fprintf(&b, "To: \"%s\" <%s>\r\n", p.ToDisplay, p.ToURI)
	}

	fmt.Fprintf(&b, "Call-ID: %s\r\n", p.CallID)
	fmt.Fprintf(&b, "CSeq: %d %s\r\n", p.CSeq, p.Method)

	if p.ContactURI != "" {
		fmt.Fprintf(&b, "Contact: <%s;transport=%s;ob>;+sip.instance=\"<urn:uuid:%s>\"\r\n",
			p.ContactURI, strings.ToLower(p.Transport), p.InstanceUUID)
	}

	fmt.Fprintf(&b, "User-Agent: %s\r\n", UserAgent)

	if p.Authorization != "" {
		fmt.Fprintf(&b, "Authorization: %s\r\n", p.Authorization)
	}
	if p.ProxyAuthorization != "" {
		fmt.Fprintf(&b, "Proxy-Authorization: %s\r\n", p.ProxyAuthorization)
	}

	if p.Body != nil && len(p.ContentType) > 0 {
		fmt.Fprintf(&b, "Content-Type: %s\r\n", p.ContentType)
	}
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(p.Body))

	b.WriteString("\r\n")
	if len(p.Body) > 0 {
		b.Write(p.Body)
	}

	return []byte(b.String())
}

// InviteAudioPort computes the local RTP port for an INVITE, per §4.5:
// 50000 + 2*(sessionID mod 4096).
func InviteAudioPort(sessionID uint64) int {
	return 50000 + 2*int(sessionID%4096)
}

// BuildResponse renders a response reusing the request's Via/From/To/
// Call-ID/CSeq, per RFC 3261's standard UAS response-building rule. toTag
// is filled in for dialog-creating responses (180/200 to INVITE) when the
// request didn't already carry one.
func BuildResponse(req *ParsedMessage, code int, reason, toTag string, contactURI string, body []byte, contentType string) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "SIP/2.0 %d %s\r\n", code, reason)
	// The request's top Via is copied back verbatim rather than rebuilt
	// from parsed pieces; further Via headers are not kept by the parser
	// and are not echoed.
	fmt.Fprintf(&b, "Via: %s\r\n", req.TopViaRaw)

	fmt.Fprintf(&b, "From: \"%s\" <%s>;tag=%s\r\n", req.From.DisplayName, req.From.AddrSpec, req.From.Tag())

	tag := req.To.Tag()
	if tag == "" {
		tag = toTag
	}
	if tag != "" {
		fmt.Fprintf(&b, "To: \"%s\" <%s>;tag=%s\r\n", req.To.DisplayName, req.To.AddrSpec, tag)
	} else {
		fmt.Fprintf(&b, "To: \"%s\" <%s>\r\n", req.To.DisplayName, req.To.AddrSpec)
	}

	fmt.Fprintf(&b, "Call-ID: %s\r\n", req.CallID)
	fmt.Fprintf(&b, "CSeq: %d %s\r\n", req.CSeqNum, req.CSeqMethod)

	if contactURI != "" {
		fmt.Fprintf(&b, "Contact: <%s>\r\n", contactURI)
	}
	fmt.Fprintf(&b, "User-Agent: %s\r\n", UserAgent)

	if body != nil && contentType != "" {
		fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	}
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	b.WriteString("\r\n")
	if len(body) > 0 {
		b.Write(body)
	}

	return []byte(b.String())
}

// sdpOfferBody renders the SDP body for an outbound INVITE, per §4.5.
func sdpOfferBody(localIP string, localPort int, sessionID uint64, codecs []sip.Codec) []byte {
	body, _ := sip.BuildOffer(localIP, localPort, sessionID, codecs)
	return body
}
