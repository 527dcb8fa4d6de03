// Package packet provides the received-packet accessor used by the
// demultiplexer. It wraps pion/rtp for standards-compliant parsing and
// extracts the stream identifier header extension once, at parse time,
// so the per-packet routing path never re-scans the header.
package packet

import (
	"fmt"

	"github.com/pion/rtp"

	"github.com/opd-ai/rtpdemux/streamid"
)

// StreamIDURI is the RTP header extension URI carrying the stream
// identifier (RFC 8852).
const StreamIDURI = "urn:ietf:params:rtp-hdr-ext:sdes:rtp-stream-id"

// ExtensionMap holds the negotiated header extension identifiers needed
// to read packet metadata. Extension identifiers are session-scoped and
// arrive from signaling; a zero identifier disables extraction.
type ExtensionMap struct {
	// StreamIDExtensionID is the extension identifier mapped to
	// StreamIDURI for this session, or 0 if not negotiated.
	StreamIDExtensionID uint8
}

// Packet is a received RTP packet together with the metadata the
// demultiplexer routes on.
type Packet struct {
	// RTP is the parsed packet, exposed for sinks that need header
	// fields or the payload.
	RTP rtp.Packet

	streamID    string
	hasStreamID bool
}

// Parse unmarshals a received datagram and captures its stream identifier
// tag, if one is present and well-formed under em.
//
// Parameters:
//   - buf: Raw RTP datagram
//   - em: Negotiated extension identifiers for this session
//
// Returns:
//   - *Packet: The parsed packet
//   - error: Any error from RTP header parsing
func Parse(buf []byte, em ExtensionMap) (*Packet, error) {
	p := &Packet{}
	if err := p.RTP.Unmarshal(buf); err != nil {
		return nil, fmt.Errorf("unmarshal rtp packet: %w", err)
	}
	if em.StreamIDExtensionID != 0 {
		if raw := p.RTP.GetExtension(em.StreamIDExtensionID); raw != nil {
			// A malformed tag is treated as absent, not as an error:
			// the packet itself is still routable by SSRC.
			if id := string(raw); streamid.IsLegal(id) {
				p.streamID = id
				p.hasStreamID = true
			}
		}
	}
	return p, nil
}

// New builds a packet with the given SSRC and no stream identifier tag.
func New(ssrc uint32) *Packet {
	p := &Packet{}
	p.RTP.SSRC = ssrc
	return p
}

// NewWithStreamID builds a packet carrying a stream identifier tag.
// An illegal id is treated as absent, mirroring Parse.
func NewWithStreamID(ssrc uint32, id string) *Packet {
	p := New(ssrc)
	if streamid.IsLegal(id) {
		p.streamID = id
		p.hasStreamID = true
	}
	return p
}

// SSRC returns the packet's synchronization source identifier.
func (p *Packet) SSRC() uint32 {
	return p.RTP.SSRC
}

// StreamID returns the stream identifier tag and whether one was present
// and well-formed.
func (p *Packet) StreamID() (string, bool) {
	return p.streamID, p.hasStreamID
}
