package rtpdemux

import (
	"github.com/pion/rtcp"
	"github.com/sirupsen/logrus"
)

// RTCPSink consumes RTCP compound packets routed to it by an RTCPDemuxer.
// Like PacketSink, RTCP sinks are non-owned references.
type RTCPSink interface {
	DeliverRTCP(packets []rtcp.Packet)
}

// RTCPDemuxer routes inbound RTCP compound packets to the sinks
// registered for the SSRCs they reference, plus any broadcast sinks.
// RTCP carries no stream identifier extension, so there is no resolution
// protocol here; routing is by SSRC only.
//
// Same concurrency model as Demuxer: no internal locking, callers
// serialize.
type RTCPDemuxer struct {
	ssrcSinks      map[uint32][]RTCPSink
	broadcastSinks []RTCPSink
}

// NewRTCPDemuxer creates an empty RTCP demultiplexer.
func NewRTCPDemuxer() *RTCPDemuxer {
	return &RTCPDemuxer{
		ssrcSinks: make(map[uint32][]RTCPSink),
	}
}

// AddSink registers sink for compound packets referencing the given SSRC.
// Idempotent, like Demuxer.AddSink.
func (d *RTCPDemuxer) AddSink(ssrc uint32, sink RTCPSink) error {
	if sink == nil {
		return ErrNilSink
	}
	if !containsValue(d.ssrcSinks[ssrc], sink) {
		d.ssrcSinks[ssrc] = append(d.ssrcSinks[ssrc], sink)
	}
	return nil
}

// AddBroadcastSink registers sink for every compound packet, regardless
// of the SSRCs it references.
func (d *RTCPDemuxer) AddBroadcastSink(sink RTCPSink) error {
	if sink == nil {
		return ErrNilSink
	}
	if !containsValue(d.broadcastSinks, sink) {
		d.broadcastSinks = append(d.broadcastSinks, sink)
	}
	return nil
}

// RemoveSink removes every registration involving sink, both SSRC-keyed
// and broadcast. Reports whether at least one entry was removed.
func (d *RTCPDemuxer) RemoveSink(sink RTCPSink) bool {
	if sink == nil {
		return false
	}
	removedSSRC := removeValueFromTable(d.ssrcSinks, sink)
	pruned, removedBroadcast := removeValue(d.broadcastSinks, sink)
	d.broadcastSinks = pruned
	return removedSSRC || removedBroadcast
}

// OnPacket parses one RTCP datagram (possibly a compound packet) and
// delivers it to each sink registered for any SSRC the compound
// references, at most once per sink, then to every broadcast sink.
// Reports whether any sink received it.
func (d *RTCPDemuxer) OnPacket(buf []byte) bool {
	packets, err := rtcp.Unmarshal(buf)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "OnPacket",
			"error":    err,
		}).Debug("Dropping malformed RTCP datagram")
		return false
	}

	var targets []RTCPSink
	for _, pkt := range packets {
		for _, ssrc := range pkt.DestinationSSRC() {
			for _, sink := range d.ssrcSinks[ssrc] {
				if !containsValue(targets, sink) {
					targets = append(targets, sink)
				}
			}
		}
	}

	for _, sink := range targets {
		sink.DeliverRTCP(packets)
	}
	for _, sink := range d.broadcastSinks {
		sink.DeliverRTCP(packets)
	}
	return len(targets) > 0 || len(d.broadcastSinks) > 0
}

// Close verifies the caller removed every registration, mirroring
// Demuxer.Close.
func (d *RTCPDemuxer) Close() error {
	if len(d.ssrcSinks) != 0 || len(d.broadcastSinks) != 0 {
		return ErrSinksRemaining
	}
	return nil
}
