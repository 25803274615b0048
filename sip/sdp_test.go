package sip

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOfferIncludesCodecsAndConnection(t *testing.T) {
	body, err := BuildOffer("192.0.2.10", 40000, 12345, []Codec{CodecG722, CodecPCMA, CodecPCMU})
	require.NoError(t, err)

	s := string(body)
	assert.True(t, strings.HasPrefix(s, "v=0\r\n"))
	assert.Contains(t, s, "c=IN IP4 192.0.2.10\r\n")
	assert.Contains(t, s, "m=audio 40000 RTP/AVP 9 8 0\r\n")
	assert.Contains(t, s, "a=rtpmap:9 G722/8000\r\n")
	assert.Contains(t, s, "a=rtpmap:8 PCMA/8000\r\n")
	assert.Contains(t, s, "a=rtpmap:0 PCMU/8000\r\n")
	assert.Contains(t, s, "a=sendrecv\r\n")
}

func TestParseOfferAnswerSelectsFirstSupported(t *testing.T) {
	body := []byte(
		"v=0\r\n" +
			"o=- 1 1 IN IP4 203.0.113.5\r\n" +
			"s=-\r\n" +
			"c=IN IP4 203.0.113.5\r\n" +
			"t=0 0\r\n" +
			"m=audio 30000 RTP/AVP 3 9 0\r\n" +
			"a=rtpmap:9 G722/8000\r\n" +
			"a=rtpmap:0 PCMU/8000\r\n",
	)

	ans, err := ParseOfferAnswer(body, []Codec{CodecG722, CodecPCMA, CodecPCMU})
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.5", ans.RemoteAddr)
	assert.Equal(t, 30000, ans.RemotePort)
	assert.Equal(t, 9, ans.PayloadType)
}

func TestParseOfferAnswerMediaLevelConnectionOverridesSession(t *testing.T) {
	body := []byte(
		"v=0\r\n" +
			"o=- 1 1 IN IP4 203.0.113.5\r\n" +
			"s=-\r\n" +
			"c=IN IP4 203.0.113.5\r\n" +
			"t=0 0\r\n" +
			"m=audio 30000 RTP/AVP 0\r\n" +
			"c=IN IP4 198.51.100.9\r\n" +
			"a=rtpmap:0 PCMU/8000\r\n",
	)

	ans, err := ParseOfferAnswer(body, []Codec{CodecPCMU})
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.9", ans.RemoteAddr)
}

func TestParseOfferAnswerNoSupportedCodec(t *testing.T) {
	body := []byte(
		"v=0\r\n" +
			"o=- 1 1 IN IP4 203.0.113.5\r\n" +
			"s=-\r\n" +
			"c=IN IP4 203.0.113.5\r\n" +
			"t=0 0\r\n" +
			"m=audio 30000 RTP/AVP 3\r\n" +
			"a=rtpmap:3 GSM/8000\r\n",
	)

	_, err := ParseOfferAnswer(body, []Codec{CodecG722, CodecPCMA, CodecPCMU})
	require.ErrorIs(t, err, ErrNoSupportedCodec)
}

func TestParseOfferAnswerRejectsGarbage(t *testing.T) {
	_, err := ParseOfferAnswer([]byte("not sdp at all"), []Codec{CodecPCMU})
	require.Error(t, err)
}

func TestCodecByPT(t *testing.T) {
	supported := []Codec{CodecG722, CodecPCMA, CodecPCMU}
	c, ok := CodecByPT(8, supported)
	require.True(t, ok)
	assert.Equal(t, "PCMA", c.Name)

	_, ok = CodecByPT(99, supported)
	assert.False(t, ok)
}
