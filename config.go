package tinysip

import (
	"github.com/wiphone/tinysip/connection"
	"github.com/wiphone/tinysip/sip"
)

// Config holds the engine's local identity and transport policy (§3
// "Engine globals", §6 init()).
type Config struct {
	// DisplayName and User identify the local party ("Alice", "alice").
	DisplayName string
	User        string

	// ProxyHost and ProxyPort name the outbound proxy/registrar.
	ProxyHost string
	ProxyPort int

	// Password authenticates REGISTER/INVITE/MESSAGE challenges.
	Password string

	// MAC is the 6-byte hardware address used to derive the Contact
	// instance UUID (§6, "Contact instance ID format").
	MAC [6]byte

	// Transport selects UDP or TCP for all engine-owned connections.
	Transport connection.Kind

	// Codecs lists supported audio payload types, in SDP offer order.
	// Defaults to G722, PCMA, PCMU (§4.5) when left nil.
	Codecs []sip.Codec
}

// DefaultCodecs returns the engine's default codec preference order.
func DefaultCodecs() []sip.Codec {
	return []sip.Codec{sip.CodecG722, sip.CodecPCMA, sip.CodecPCMU}
}
