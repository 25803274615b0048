package sip

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
)

// Codec names a single RTP payload type tinySIP knows how to negotiate,
// per §4.7 ("G722, PCMA, PCMU").
type Codec struct {
	PT   int
	Name string
}

var (
	CodecG722 = Codec{PT: 9, Name: "G722"}
	CodecPCMA = Codec{PT: 8, Name: "PCMA"}
	CodecPCMU = Codec{PT: 0, Name: "PCMU"}
)

// ErrSDPNoSession is returned when a body lacks the mandatory "v=0" line.
var ErrSDPNoSession = errors.New("sip: not a valid SDP session description")

// ErrNoSupportedCodec is returned by ParseOfferAnswer when no payload type
// in the remote m=audio line is in the local supported set (§4.7 — the
// engine should respond 488 Not Acceptable Here in that case).
var ErrNoSupportedCodec = errors.New("sip: no supported audio codec in SDP offer")

// BuildOffer renders the outbound SDP body described in §4.5's INVITE rule:
// one audio m= line advertising codecs (in engine-policy order), with
// session and media level c= lines and a=sendrecv.
func BuildOffer(localIP string, localPort int, sessionID uint64, codecs []Codec) ([]byte, error) {
	formats := make([]string, 0, len(codecs))
	attrs := make([]sdp.Attribute, 0, len(codecs)+1)
	for _, c := range codecs {
		formats = append(formats, strconv.Itoa(c.PT))
		attrs = append(attrs, sdp.Attribute{
			Key:   "rtpmap",
			Value: fmt.Sprintf("%d %s/8000", c.PT, c.Name),
		})
	}
	attrs = append(attrs, sdp.Attribute{Key: "sendrecv"})

	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      sessionID,
			SessionVersion: sessionID,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: localIP,
		},
		SessionName: "WiPhone",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: localIP},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   "audio",
					Port:    sdp.RangedPort{Value: localPort},
					Protos:  []string{"RTP", "AVP"},
					Formats: formats,
				},
				ConnectionInformation: &sdp.ConnectionInformation{
					NetworkType: "IN",
					AddressType: "IP4",
					Address:     &sdp.Address{Address: localIP},
				},
				Attributes: append(attrs, sdp.Attribute{
					Key:   "rtcp",
					Value: strconv.Itoa(localPort + 1),
				}),
			},
		},
	}

	return desc.Marshal()
}

// Answer is the outcome of negotiating an inbound SDP body against the
// local supported codec set (§4.7).
type Answer struct {
	RemoteAddr string
	RemotePort int
	PayloadType int
}

// ParseOfferAnswer extracts the first m=audio stream from body, resolves
// its target address (media-level c= overrides session-level c=), and
// selects a payload type by local policy order: the first entry of
// supported that also appears in the remote offer, regardless of the
// order the remote listed its own formats in (§4.7).
func ParseOfferAnswer(body []byte, supported []Codec) (*Answer, error) {
	desc := &sdp.SessionDescription{}
	if err := desc.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSDPNoSession, err)
	}

	sessionAddr := ""
	if desc.ConnectionInformation != nil && desc.ConnectionInformation.Address != nil {
		sessionAddr = desc.ConnectionInformation.Address.Address
	}

	for _, md := range desc.MediaDescriptions {
		if md.MediaName.Media != "audio" {
			continue
		}

		addr := sessionAddr
		if md.ConnectionInformation != nil && md.ConnectionInformation.Address != nil {
			addr = md.ConnectionInformation.Address.Address
		}

		pt, err := selectPayloadType(md.MediaName.Formats, supported)
		if err != nil {
			return nil, err
		}

		return &Answer{
			RemoteAddr:  addr,
			RemotePort:  md.MediaName.Port.Value,
			PayloadType: pt,
		}, nil
	}

	return nil, fmt.Errorf("%w: no m=audio line", ErrNoSupportedCodec)
}

func selectPayloadType(offered []string, supported []Codec) (int, error) {
	offeredPTs := make(map[int]bool, len(offered))
	for _, tok := range offered {
		if pt, err := strconv.Atoi(strings.TrimSpace(tok)); err == nil {
			offeredPTs[pt] = true
		}
	}
	for _, c := range supported {
		if offeredPTs[c.PT] {
			return c.PT, nil
		}
	}
	return 0, ErrNoSupportedCodec
}

// CodecByPT returns the codec descriptor for a payload type, if tinySIP
// supports it.
func CodecByPT(pt int, supported []Codec) (Codec, bool) {
	for _, c := range supported {
		if c.PT == pt {
			return c, true
		}
	}
	return Codec{}, false
}
