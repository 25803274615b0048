package tinysip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessagePong(t *testing.T) {
	msg, n, err := ParseMessage([]byte("\r\nGARBAGE"))
	require.NoError(t, err)
	assert.True(t, msg.IsPong)
	assert.Equal(t, 2, n)
}

func TestParseMessageResponseStartLine(t *testing.T) {
	raw := "SIP/2.0 180 Ringing\r\n" +
		"Via: SIP/2.0/UDP 192.0.2.1:5060;branch=z9hG4bKMZJ-abc\r\n" +
		"From: \"Alice\" <sip:alice@atlanta.com>;tag=at\r\n" +
		"To: \"Bob\" <sip:bob@example.org>;tag=bt\r\n" +
		"Call-ID: X\r\n" +
		"CSeq: 1 INVITE\r\n" +
		"Content-Length: 0\r\n" +
		"\r\n"

	msg, n, err := ParseMessage([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, len(raw), n)
	assert.True(t, msg.IsResponse)
	assert.Equal(t, 180, msg.StatusCode)
	assert.Equal(t, "Ringing", msg.ReasonPhrase)
	assert.Equal(t, "X", msg.CallID)
	assert.Equal(t, int32(1), msg.CSeqNum)
	assert.Equal(t, "INVITE", msg.CSeqMethod)
	assert.Equal(t, "Alice", msg.From.DisplayName)
	assert.Equal(t, "sip:alice@atlanta.com", msg.From.AddrSpec)
	assert.Equal(t, "at", msg.From.Tag())
	assert.Equal(t, "bt", msg.To.Tag())
	assert.Equal(t, "UDP", msg.TopViaTransport)
	assert.Equal(t, "z9hG4bKMZJ-abc", msg.TopViaBranch)
	assert.Equal(t, "SIP/2.0/UDP 192.0.2.1:5060;branch=z9hG4bKMZJ-abc", msg.TopViaRaw)
}

func TestParseMessageRequestStartLine(t *testing.T) {
	raw := "INVITE sip:bob@example.org SIP/2.0\r\n" +
		"Via: SIP/2.0/TCP 192.0.2.1:5060;branch=z9hG4bKMZJ-xyz\r\n" +
		"From: <sip:alice@atlanta.com>;tag=at\r\n" +
		"To: <sip:bob@example.org>\r\n" +
		"Call-ID: Y\r\n" +
		"CSeq: 2 INVITE\r\n" +
		"Contact: <sip:alice@192.0.2.1:5060>\r\n" +
		"Content-Length: 0\r\n" +
		"\r\n"

	msg, _, err := ParseMessage([]byte(raw))
	require.NoError(t, err)
	assert.False(t, msg.IsResponse)
	assert.Equal(t, "INVITE", msg.Method)
	assert.Equal(t, "sip:bob@example.org", msg.RequestURI)
	assert.Equal(t, "sip:alice@192.0.2.1:5060", msg.Contact)
}

func TestParseMessageCompactHeaders(t *testing.T) {
	raw := "MESSAGE sip:bob@example.org SIP/2.0\r\n" +
		"v: SIP/2.0/UDP 192.0.2.1:5060;branch=z9hG4bKMZJ-1\r\n" +
		"f: <sip:alice@atlanta.com>;tag=at\r\n" +
		"t: <sip:bob@example.org>\r\n" +
		"i: Z\r\n" +
		"CSeq: 1 MESSAGE\r\n" +
		"c: text/plain\r\n" +
		"l: 5\r\n" +
		"\r\n" +
		"hello"

	msg, n, err := ParseMessage([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "Z", msg.CallID)
	assert.Equal(t, "text/plain", msg.ContentType)
	assert.Equal(t, "hello", string(msg.Body))
	assert.Equal(t, len(raw), n)
}

func TestParseMessageRecordRouteAccumulatesAndDirection(t *testing.T) {
	raw := "SIP/2.0 200 OK\r\n" +
		"Via: SIP/2.0/UDP 192.0.2.1:5060;branch=z9hG4bKMZJ-1\r\n" +
		"Record-Route: <sip:p1@proxy1.example.org;lr>, <sip:p2@proxy2.example.org;lr>\r\n" +
		"From: <sip:alice@atlanta.com>;tag=at\r\n" +
		"To: <sip:bob@example.org>;tag=bt\r\n" +
		"Call-ID: X\r\n" +
		"CSeq: 1 INVITE\r\n" +
		"Content-Length: 0\r\n" +
		"\r\n"

	msg, _, err := ParseMessage([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, 2, msg.RouteSet.Len())
	// response -> client-origin route set -> reverse iteration.
	assert.Equal(t, "sip:p2@proxy2.example.org;lr", msg.RouteSet.At(0))
	assert.Equal(t, "sip:p1@proxy1.example.org;lr", msg.RouteSet.At(1))
}

func TestParseMessageWWWAuthenticate(t *testing.T) {
	raw := "SIP/2.0 401 Unauthorized\r\n" +
		"Via: SIP/2.0/UDP 192.0.2.1:5060;branch=z9hG4bKMZJ-1\r\n" +
		"From: <sip:alice@atlanta.com>;tag=at\r\n" +
		"To: <sip:example.org>\r\n" +
		"Call-ID: X\r\n" +
		"CSeq: 1 REGISTER\r\n" +
		`WWW-Authenticate: Digest realm="example.org", nonce="abc", qop="auth", algorithm=MD5` + "\r\n" +
		"Content-Length: 0\r\n" +
		"\r\n"

	msg, _, err := ParseMessage([]byte(raw))
	require.NoError(t, err)
	require.NotNil(t, msg.Challenge)
	assert.Equal(t, "example.org", msg.Challenge.Realm)
	assert.Equal(t, "abc", msg.Challenge.Nonce)
	assert.Equal(t, "auth", msg.Challenge.SelectQop())
}

func TestParseMessageMissingColonIsError(t *testing.T) {
	raw := "INVITE sip:bob@example.org SIP/2.0\r\n" +
		"NotAHeader\r\n" +
		"\r\n"
	_, _, err := ParseMessage([]byte(raw))
	require.ErrorIs(t, err, ErrMalformedMessage)
}

func TestParseMessageTruncatedBodyIsError(t *testing.T) {
	raw := "MESSAGE sip:bob@example.org SIP/2.0\r\n" +
		"Call-ID: Z\r\n" +
		"CSeq: 1 MESSAGE\r\n" +
		"Content-Length: 100\r\n" +
		"\r\n" +
		"short"
	_, _, err := ParseMessage([]byte(raw))
	require.ErrorIs(t, err, ErrMalformedMessage)
}
