package rtpdemux

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/rtpdemux/packet"
	"github.com/opd-ai/rtpdemux/streamid"
)

// DefaultMaxProcessedSSRCs bounds the processed-SSRC cache. An attacker
// cycling through SSRC values can otherwise grow the cache without limit.
const DefaultMaxProcessedSSRCs = 1000

// PacketSink consumes packets routed to it by a Demuxer.
//
// Sinks are non-owned references: the demultiplexer never creates or
// destroys a sink, and every registration for a sink must be removed
// (RemoveSink) before the sink's lifetime ends.
type PacketSink interface {
	// DeliverPacket hands one routed packet to the sink. The sink must
	// not assume it is the packet's only recipient.
	DeliverPacket(p *packet.Packet)
}

// ResolutionObserver is notified when a stream identifier is resolved to
// a concrete SSRC.
type ResolutionObserver interface {
	// OnStreamResolved is invoked synchronously, exactly once per
	// resolution event, before the stream id's table entries are removed.
	OnStreamResolved(streamID string, ssrc uint32)
}

// Demuxer routes inbound RTP packets to the sinks registered for them,
// keyed either directly by SSRC or, until the SSRC is learned, by a
// stream identifier tag carried in packet metadata.
//
// All operations are synchronous and non-blocking. The Demuxer applies
// no internal locking; callers must confine all calls to one goroutine
// or wrap the Demuxer in external mutual exclusion (transport.Receiver
// does the latter).
type Demuxer struct {
	ssrcSinks     map[uint32][]PacketSink
	streamIDSinks map[string][]PacketSink

	// processedSSRCs caches SSRCs whose stream id resolution already ran,
	// so the common path skips the extension lookup and string compares.
	processedSSRCs    map[uint32]struct{}
	maxProcessedSSRCs int
	warnedCacheFull   bool

	observers []ResolutionObserver
}

// NewDemuxer creates a demultiplexer with the default processed-SSRC
// cache capacity.
func NewDemuxer() *Demuxer {
	return NewDemuxerWithCacheSize(DefaultMaxProcessedSSRCs)
}

// NewDemuxerWithCacheSize creates a demultiplexer whose processed-SSRC
// cache holds at most maxProcessedSSRCs entries. Values below one fall
// back to the default.
func NewDemuxerWithCacheSize(maxProcessedSSRCs int) *Demuxer {
	if maxProcessedSSRCs < 1 {
		maxProcessedSSRCs = DefaultMaxProcessedSSRCs
	}
	return &Demuxer{
		ssrcSinks:         make(map[uint32][]PacketSink),
		streamIDSinks:     make(map[string][]PacketSink),
		processedSSRCs:    make(map[uint32]struct{}),
		maxProcessedSSRCs: maxProcessedSSRCs,
	}
}

// AddSink registers sink for packets carrying the given SSRC.
// Idempotent: registering an existing (ssrc, sink) pair is a no-op, and
// other sinks for the same SSRC are unaffected.
func (d *Demuxer) AddSink(ssrc uint32, sink PacketSink) error {
	if sink == nil {
		return ErrNilSink
	}
	d.recordSSRCAssociation(ssrc, sink)
	return nil
}

// AddStreamIDSink registers sink for packets of the stream identified by
// id, pending SSRC resolution. The id must satisfy the stream identifier
// grammar and the (id, sink) pair must not already be registered.
//
// Registration invalidates the processed-SSRC cache: an SSRC processed
// before this call might resolve against the new mapping.
func (d *Demuxer) AddStreamIDSink(id string, sink PacketSink) error {
	if sink == nil {
		return ErrNilSink
	}
	if err := streamid.Validate(id); err != nil {
		return fmt.Errorf("stream id %q: %w", id, err)
	}
	if containsValue(d.streamIDSinks[id], sink) {
		return fmt.Errorf("%w: %q", ErrDuplicateSink, id)
	}

	d.streamIDSinks[id] = append(d.streamIDSinks[id], sink)

	// This stream id might now map to an SSRC seen earlier.
	d.processedSSRCs = make(map[uint32]struct{})
	return nil
}

// RemoveSink removes every association involving sink, whether keyed by
// SSRC or by stream id. Reports whether at least one entry was removed.
// Safe to call for a sink with no registrations.
func (d *Demuxer) RemoveSink(sink PacketSink) bool {
	if sink == nil {
		return false
	}
	removedSSRC := removeValueFromTable(d.ssrcSinks, sink)
	removedStreamID := removeValueFromTable(d.streamIDSinks, sink)
	return removedSSRC || removedStreamID
}

// RegisterObserver adds an observer to be notified of stream id
// resolutions, in registration order. Registration invalidates the
// processed-SSRC cache so the new observer still learns about SSRCs that
// were processed but will be seen again.
func (d *Demuxer) RegisterObserver(observer ResolutionObserver) error {
	if observer == nil {
		return ErrNilObserver
	}
	if containsValue(d.observers, observer) {
		return ErrDuplicateObserver
	}

	d.observers = append(d.observers, observer)

	// New observer requires new notifications.
	d.processedSSRCs = make(map[uint32]struct{})
	return nil
}

// DeregisterObserver removes a previously registered observer.
func (d *Demuxer) DeregisterObserver(observer ResolutionObserver) error {
	if observer == nil {
		return ErrNilObserver
	}
	pruned, ok := removeValue(d.observers, observer)
	if !ok {
		return ErrUnknownObserver
	}
	d.observers = pruned
	return nil
}

// OnPacket routes one inbound packet: it resolves any pending stream id
// association for the packet's SSRC, then delivers the packet to every
// sink associated with that SSRC, in association order. Reports whether
// at least one sink received the packet.
func (d *Demuxer) OnPacket(p *packet.Packet) bool {
	d.resolveAssociations(p)
	sinks := d.ssrcSinks[p.SSRC()]
	for _, sink := range sinks {
		sink.DeliverPacket(p)
	}
	return len(sinks) > 0
}

// Close verifies the caller removed every registration. It replaces a
// destructor-time assertion: a non-nil return means a programming error
// in the caller, not a recoverable condition.
func (d *Demuxer) Close() error {
	if len(d.ssrcSinks) != 0 || len(d.streamIDSinks) != 0 {
		logrus.WithFields(logrus.Fields{
			"function":        "Close",
			"ssrc_sinks":      len(d.ssrcSinks),
			"stream_id_sinks": len(d.streamIDSinks),
		}).Error("Demuxer closed with live registrations")
		return ErrSinksRemaining
	}
	return nil
}

// recordSSRCAssociation inserts (ssrc, sink) unless the association
// already exists, possibly set up by a different configuration source.
func (d *Demuxer) recordSSRCAssociation(ssrc uint32, sink PacketSink) {
	if !containsValue(d.ssrcSinks[ssrc], sink) {
		d.ssrcSinks[ssrc] = append(d.ssrcSinks[ssrc], sink)
	}
}

// resolveAssociations runs the resolution protocol for the packet's SSRC
// unless the cache shows it already ran.
func (d *Demuxer) resolveAssociations(p *packet.Packet) {
	ssrc := p.SSRC()

	// Avoid expensive string comparisons for the stream id by looking the
	// sinks up only by SSRC whenever possible.
	if _, done := d.processedSSRCs[ssrc]; done {
		return
	}

	d.resolveStreamID(p)

	if len(d.processedSSRCs) < d.maxProcessedSSRCs {
		d.processedSSRCs[ssrc] = struct{}{}
	} else if !d.warnedCacheFull {
		logrus.WithFields(logrus.Fields{
			"function": "resolveAssociations",
			"limit":    d.maxProcessedSSRCs,
		}).Warn("Processed SSRC limit reached, resolution results for new SSRCs will not be cached")
		d.warnedCacheFull = true
	}
}

// resolveStreamID promotes the stream id tag on p, if any, to SSRC
// associations: every sink registered under the tag becomes associated
// with the packet's SSRC, observers are notified, and the tag's entries
// are removed. A tag is consumed at most once; packets carrying the same
// tag with a different SSRC later will not spawn new associations.
func (d *Demuxer) resolveStreamID(p *packet.Packet) {
	id, ok := p.StreamID()
	if !ok {
		return
	}
	ssrc := p.SSRC()

	for _, sink := range d.streamIDSinks[id] {
		d.recordSSRCAssociation(ssrc, sink)
	}

	for _, observer := range d.observers {
		observer.OnStreamResolved(id, ssrc)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "resolveStreamID",
		"stream_id": id,
		"ssrc":      ssrc,
		"sinks":     len(d.streamIDSinks[id]),
	}).Debug("Stream id resolved")

	delete(d.streamIDSinks, id)
}
