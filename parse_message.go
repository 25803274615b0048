package tinysip

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wiphone/tinysip/sip"
)

// ErrMalformedMessage is returned for any structural parse failure (§4.6):
// a missing start line, a header line without a colon, or a truncated
// body. The caller resets its buffer and emits SIP_ERROR on this error.
var ErrMalformedMessage = errors.New("tinysip: malformed SIP message")

// compactHeaderNames maps RFC 3261 §7.3.3 compact forms to their long
// header names, applied after lowercasing.
var compactHeaderNames = map[string]string{
	"i": "call-id",
	"m": "contact",
	"l": "content-length",
	"e": "content-encoding",
	"k": "supported",
	"c": "content-type",
	"f": "from",
	"s": "subject",
	"t": "to",
	"v": "via",
}

// NameAddr is a parsed display-name + addr-spec + parameter list, as found
// in To/From/Contact/Record-Route header values.
type NameAddr struct {
	DisplayName string
	AddrSpec    string
	Params      sip.HeaderParams
}

// ParsedMessage is the per-message parse context of §3/§4.6: pointers (in
// Go, substrings and parsed values) into one inbound message. It is only
// valid until the engine's next receive.
type ParsedMessage struct {
	IsResponse bool
	IsPong     bool

	Method       string
	RequestURI   string
	StatusCode   int
	ReasonPhrase string

	TopViaTransport string
	TopViaBranch    string
	// TopViaRaw is the untouched value of the first Via header (everything
	// after "Via:"), kept so a UAS response can copy it back verbatim per
	// RFC 3261 §8.1.1.7 instead of reassembling it from parsed pieces.
	TopViaRaw string

	CallID        string
	CSeqNum       int32
	CSeqMethod    string
	ContentType   string
	ContentLength int

	From NameAddr
	To   NameAddr

	// Contact is the first sip:/sips: addr-spec found in a Contact header,
	// or "*" for the special deregister-all value. Empty if absent.
	Contact string

	// RouteSet accumulates Record-Route headers; Reverse is true when this
	// message is a response (client-origin route set), false for a
	// request (server-origin).
	RouteSet sip.RouteSet

	Challenge *sip.Challenge

	Body []byte
}

// ParseMessage parses one SIP message (or a bare "\r\n" pong) starting at
// the front of buf. It returns the parsed message and the number of bytes
// consumed from buf. Every call starts a fresh RouteSet: reverse for a
// response, forward for a request.
func ParseMessage(buf []byte) (*ParsedMessage, int, error) {
	if len(buf) >= 2 && buf[0] == '\r' && buf[1] == '\n' {
		return &ParsedMessage{IsPong: true}, 2, nil
	}

	headEnd := indexHeaderTerminator(buf)
	if headEnd < 0 {
		return nil, 0, fmt.Errorf("%w: no header terminator", ErrMalformedMessage)
	}

	head := string(buf[:headEnd])
	lines := strings.Split(head, "\r\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, 0, fmt.Errorf("%w: empty start line", ErrMalformedMessage)
	}

	msg := &ParsedMessage{}
	if err := parseStartLine(msg, lines[0]); err != nil {
		return nil, 0, err
	}
	msg.RouteSet.Clear(msg.IsResponse)

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		if err := parseHeaderLine(msg, line); err != nil {
			return nil, 0, err
		}
	}

	consumed := headEnd + 4 // "\r\n\r\n"
	if msg.ContentLength > 0 {
		if len(buf) < consumed+msg.ContentLength {
			return nil, 0, fmt.Errorf("%w: truncated body", ErrMalformedMessage)
		}
		msg.Body = buf[consumed : consumed+msg.ContentLength]
		consumed += msg.ContentLength
	}

	return msg, consumed, nil
}

func indexHeaderTerminator(buf []byte) int {
	return strings.Index(string(buf), "\r\n\r\n")
}

func parseStartLine(msg *ParsedMessage, line string) error {
	if strings.HasPrefix(line, "SIP/") {
		msg.IsResponse = true
		fields := strings.SplitN(line, " ", 3)
		if len(fields) < 3 {
			return fmt.Errorf("%w: bad status line", ErrMalformedMessage)
		}
		code, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("%w: bad status code", ErrMalformedMessage)
		}
		msg.StatusCode = code
		msg.ReasonPhrase = fields[2]
		return nil
	}

	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 3 {
		return fmt.Errorf("%w: bad request line", ErrMalformedMessage)
	}
	msg.Method = fields[0]
	msg.RequestURI = fields[1]
	return nil
}

func parseHeaderLine(msg *ParsedMessage, line string) error {
	name, value, ok := strings.Cut(line, ":")
	if !ok {
		return fmt.Errorf("%w: header without colon: %q", ErrMalformedMessage, line)
	}
	name = sip.ASCIIToLower(strings.TrimSpace(name))
	if long, ok := compactHeaderNames[name]; ok {
		name = long
	}
	value = strings.TrimSpace(value)

	switch name {
	case "from":
		msg.From = parseNameAddr(value)
	case "to":
		msg.To = parseNameAddr(value)
	case "contact":
		if value == "*" {
			msg.Contact = "*"
		} else if msg.Contact == "" {
			na := parseNameAddr(value)
			if scheme := sip.ASCIIToLower(na.AddrSpec); strings.HasPrefix(scheme, "sip:") || strings.HasPrefix(scheme, "sips:") {
				msg.Contact = na.AddrSpec
			}
		}
	case "record-route":
		for _, entry := range splitUnquotedComma(value) {
			na := parseNameAddr(strings.TrimSpace(entry))
			if na.AddrSpec != "" {
				msg.RouteSet.Add(na.AddrSpec)
			}
		}
	case "www-authenticate", "proxy-authenticate":
		chal, err := sip.ParseChallenge(value)
		if err == nil {
			msg.Challenge = chal
		}
	case "cseq":
		numTok, methodTok, ok := strings.Cut(value, " ")
		if !ok {
			return fmt.Errorf("%w: bad CSeq", ErrMalformedMessage)
		}
		n, err := strconv.Atoi(strings.TrimSpace(numTok))
		if err != nil {
			return fmt.Errorf("%w: bad CSeq number", ErrMalformedMessage)
		}
		msg.CSeqNum = int32(n)
		msg.CSeqMethod = strings.TrimSpace(methodTok)
	case "call-id":
		msg.CallID = value
	case "content-length":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: bad Content-Length", ErrMalformedMessage)
		}
		msg.ContentLength = n
	case "content-type":
		msg.ContentType = value
	case "via":
		if msg.TopViaTransport == "" {
			parseTopVia(msg, value)
		}
	}
	return nil
}

func parseTopVia(msg *ParsedMessage, value string) {
	// "SIP/2.0/UDP host:port;branch=...;..."
	msg.TopViaRaw = value
	head, paramsStr, _ := strings.Cut(value, ";")
	protoPart, _, _ := strings.Cut(strings.TrimSpace(head), " ")
	fields := strings.Split(protoPart, "/")
	if len(fields) == 3 {
		msg.TopViaTransport = strings.TrimSpace(fields[2])
	}
	params := sip.NewParams()
	sip.UnmarshalHeaderParams(paramsStr, ';', 0, &params)
	if branch, ok := params.Get("branch"); ok {
		msg.TopViaBranch = branch
	}
}

// parseNameAddr parses a To/From/Contact/Record-Route value of the form
// `"Display" <addr-spec>;params` or bare `addr-spec;params`.
func parseNameAddr(value string) NameAddr {
	value = strings.TrimSpace(value)
	na := NameAddr{Params: sip.NewParams()}

	if idx := strings.IndexByte(value, '<'); idx >= 0 {
		na.DisplayName = unquote(strings.TrimSpace(value[:idx]))
		rest := value[idx+1:]
		end := strings.IndexByte(rest, '>')
		if end < 0 {
			na.AddrSpec = rest
			return na
		}
		na.AddrSpec = rest[:end]
		paramsStr := strings.TrimPrefix(strings.TrimSpace(rest[end+1:]), ";")
		sip.UnmarshalHeaderParams(paramsStr, ';', 0, &na.Params)
		return na
	}

	addrSpec, paramsStr, hasParams := strings.Cut(value, ";")
	na.AddrSpec = strings.TrimSpace(addrSpec)
	if hasParams {
		sip.UnmarshalHeaderParams(paramsStr, ';', 0, &na.Params)
	}
	return na
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// splitUnquotedComma splits a comma-separated header value, ignoring
// commas inside a quoted-string or angle-bracketed URI.
func splitUnquotedComma(value string) []string {
	var out []string
	depth := 0
	inQuotes := false
	start := 0
	for i, r := range value {
		switch r {
		case '"':
			inQuotes = !inQuotes
		case '<':
			if !inQuotes {
				depth++
			}
		case '>':
			if !inQuotes && depth > 0 {
				depth--
			}
		case ',':
			if !inQuotes && depth == 0 {
				out = append(out, value[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, value[start:])
	return out
}

// Tag returns the tag parameter of a NameAddr, or "" if absent.
func (n NameAddr) Tag() string {
	v, _ := n.Params.Get("tag")
	return v
}
