package sip

import (
	"errors"
	"strconv"
	"strings"
)

// ErrNoScheme is returned by ParseAddrSpec when the input carries no scheme
// delimiter (':'). Per the base spec, callers must null-check in that case;
// Go callers get this error instead.
var ErrNoScheme = errors.New("sip: address has no scheme")

// AddrSpec is a decomposed view onto a copy of an input address string,
// following RFC 3261 §25 for sip:/sips: URIs and collapsing any other
// absoluteURI down to (scheme, rest-as-hostport). It never percent-decodes
// or otherwise mutates the substrings it carries: every field must survive
// byte-equivalent round trips onto the wire.
//
// AddrSpec is immutable after construction and owns its backing copy.
type AddrSpec struct {
	raw string // private copy of the input, never mutated

	scheme    string
	userinfo  string
	hostport  string
	uriParams string
	headers   string

	host     string
	port     int
	hostDone bool // host/port have been split from hostport
}

// ParseAddrSpec decomposes addr into an AddrSpec. Delimiters are discovered
// in priority order '@', then ';', then '?', each terminating its region at
// the next delimiter, per §4.1 of the spec.
func ParseAddrSpec(addr string) (*AddrSpec, error) {
	raw := strings.Clone(addr)

	colon := strings.IndexByte(raw, ':')
	if colon < 0 {
		return nil, ErrNoScheme
	}

	a := &AddrSpec{raw: raw}
	a.scheme = strings.ToLower(raw[:colon])
	rest := raw[colon+1:]

	if a.scheme != "sip" && a.scheme != "sips" {
		// absoluteURI: collapse everything after the scheme into hostport
		a.hostport = rest
		return a, nil
	}

	// [userinfo@]hostport[;uri-params][?headers]
	hostpart := rest
	if atIdx := findUnescaped(rest, '@'); atIdx >= 0 {
		a.userinfo = rest[:atIdx]
		hostpart = rest[atIdx+1:]
	}

	if headerIdx := findUnescaped(hostpart, '?'); headerIdx >= 0 {
		a.headers = hostpart[headerIdx+1:]
		hostpart = hostpart[:headerIdx]
	}

	if paramIdx := findUnescaped(hostpart, ';'); paramIdx >= 0 {
		a.uriParams = hostpart[paramIdx+1:]
		hostpart = hostpart[:paramIdx]
	}

	a.hostport = hostpart
	return a, nil
}

// Scheme returns the lowercase-normalized scheme token.
func (a *AddrSpec) Scheme() string { return a.scheme }

// Userinfo returns the optional userinfo part, empty if absent.
func (a *AddrSpec) Userinfo() string { return a.userinfo }

// HostPort returns the authority part, byte-identical to the input.
func (a *AddrSpec) HostPort() string { return a.hostport }

// URIParams returns the raw semicolon-separated uri-params string.
func (a *AddrSpec) URIParams() string { return a.uriParams }

// Headers returns the raw ampersand-separated headers string.
func (a *AddrSpec) Headers() string { return a.headers }

// Host materializes and memoizes the host portion of HostPort, splitting on
// the last unbracketed colon (so IPv6 literals in [...] are not split).
func (a *AddrSpec) Host() string {
	a.splitHostPort()
	return a.host
}

// Port materializes and memoizes the port portion of HostPort. It returns 0
// when no port is present.
func (a *AddrSpec) Port() int {
	a.splitHostPort()
	return a.port
}

func (a *AddrSpec) splitHostPort() {
	if a.hostDone {
		return
	}
	a.hostDone = true

	hp := a.hostport
	if hp == "" {
		return
	}

	if hp[0] == '[' {
		// IPv6 reference: host runs through the matching ']'.
		end := strings.IndexByte(hp, ']')
		if end < 0 {
			a.host = hp
			return
		}
		a.host = hp[:end+1]
		rest := hp[end+1:]
		if len(rest) > 0 && rest[0] == ':' {
			if p, err := strconv.Atoi(rest[1:]); err == nil {
				a.port = p
			}
		}
		return
	}

	last := strings.LastIndexByte(hp, ':')
	if last < 0 {
		a.host = hp
		return
	}
	a.host = hp[:last]
	if p, err := strconv.Atoi(hp[last+1:]); err == nil {
		a.port = p
	}
}

// HasParameter reports whether the uri-params string contains the given
// parameter key.
func (a *AddrSpec) HasParameter(param string) bool {
	if a.uriParams == "" {
		return false
	}
	p := NewParams()
	UnmarshalHeaderParams(a.uriParams, ';', 0, &p)
	return p.Has(param)
}

// String reassembles the AddrSpec back into its wire form. For well-formed
// sip/sips input this is byte-equal to the original string (round-trip
// invariant, base spec §8 invariant 6).
func (a *AddrSpec) String() string {
	var b strings.Builder
	b.WriteString(a.scheme)
	b.WriteByte(':')
	if a.userinfo != "" {
		b.WriteString(a.userinfo)
		b.WriteByte('@')
	}
	b.WriteString(a.hostport)
	if a.uriParams != "" {
		b.WriteByte(';')
		b.WriteString(a.uriParams)
	}
	if a.headers != "" {
		b.WriteByte('?')
		b.WriteString(a.headers)
	}
	return b.String()
}
