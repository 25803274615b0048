package tinysip

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wiphone/tinysip/sip"
)

func TestBuildResponseEchoesRequestVia(t *testing.T) {
	req := &ParsedMessage{
		TopViaRaw:  "SIP/2.0/UDP 192.0.2.1:5060;branch=z9hG4bKMZJ-abc;rport",
		From:       NameAddr{DisplayName: "Alice", AddrSpec: "sip:alice@atlanta.com", Params: sip.NewParams()},
		To:         NameAddr{DisplayName: "Bob", AddrSpec: "sip:bob@example.org", Params: sip.NewParams()},
		CallID:     "abc123",
		CSeqNum:    1,
		CSeqMethod: "INVITE",
	}
	req.From.Params.Add("tag", "at")

	raw := string(BuildResponse(req, 180, "Ringing", "bt", "", nil, ""))

	assert.Contains(t, raw, "Via: SIP/2.0/UDP 192.0.2.1:5060;branch=z9hG4bKMZJ-abc;rport\r\n")
	assert.False(t, strings.Contains(raw, "Via: SIP/2.0/UDP ;"), "sent-by must not be dropped")
}
