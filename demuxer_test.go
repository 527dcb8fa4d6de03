package rtpdemux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/rtpdemux/packet"
	"github.com/opd-ai/rtpdemux/streamid"
)

// mockSink records every packet delivered to it.
type mockSink struct {
	received []*packet.Packet
}

func (m *mockSink) DeliverPacket(p *packet.Packet) {
	m.received = append(m.received, p)
}

func (m *mockSink) ssrcs() []uint32 {
	out := make([]uint32, 0, len(m.received))
	for _, p := range m.received {
		out = append(out, p.SSRC())
	}
	return out
}

// mockObserver records resolution events in order.
type mockObserver struct {
	resolutions []resolution
}

type resolution struct {
	streamID string
	ssrc     uint32
}

func (m *mockObserver) OnStreamResolved(streamID string, ssrc uint32) {
	m.resolutions = append(m.resolutions, resolution{streamID, ssrc})
}

func TestAddSinkIdempotent(t *testing.T) {
	d := NewDemuxer()
	sink := &mockSink{}

	require.NoError(t, d.AddSink(100, sink))
	require.NoError(t, d.AddSink(100, sink))

	assert.True(t, d.OnPacket(packet.New(100)))
	assert.Len(t, sink.received, 1, "duplicate registration must not duplicate delivery")

	assert.True(t, d.RemoveSink(sink))
	assert.False(t, d.RemoveSink(sink), "second removal must report nothing removed")
	assert.NoError(t, d.Close())
}

func TestAddSinkNil(t *testing.T) {
	d := NewDemuxer()
	assert.ErrorIs(t, d.AddSink(100, nil), ErrNilSink)
	assert.ErrorIs(t, d.AddStreamIDSink("stream1", nil), ErrNilSink)
}

func TestDirectRouting(t *testing.T) {
	d := NewDemuxer()
	sinkA := &mockSink{}
	require.NoError(t, d.AddSink(100, sinkA))

	assert.True(t, d.OnPacket(packet.New(100)))
	assert.Equal(t, []uint32{100}, sinkA.ssrcs())

	assert.False(t, d.OnPacket(packet.New(200)))
	assert.Len(t, sinkA.received, 1)

	d.RemoveSink(sinkA)
}

func TestMultipleSinksSameSSRC(t *testing.T) {
	d := NewDemuxer()
	sinkA := &mockSink{}
	sinkB := &mockSink{}
	require.NoError(t, d.AddSink(100, sinkA))
	require.NoError(t, d.AddSink(100, sinkB))

	assert.True(t, d.OnPacket(packet.New(100)))
	assert.Len(t, sinkA.received, 1)
	assert.Len(t, sinkB.received, 1)

	d.RemoveSink(sinkA)
	d.RemoveSink(sinkB)
}

func TestStreamIDValidation(t *testing.T) {
	d := NewDemuxer()
	sink := &mockSink{}

	assert.ErrorIs(t, d.AddStreamIDSink("", sink), streamid.ErrEmpty)
	assert.ErrorIs(t, d.AddStreamIDSink("bad stream", sink), streamid.ErrIllegalChar)

	require.NoError(t, d.AddStreamIDSink("stream1", sink))
	assert.ErrorIs(t, d.AddStreamIDSink("stream1", sink), ErrDuplicateSink)

	d.RemoveSink(sink)
}

func TestStreamIDPromotion(t *testing.T) {
	d := NewDemuxer()
	sinkB := &mockSink{}
	observer := &mockObserver{}

	require.NoError(t, d.AddStreamIDSink("stream1", sinkB))
	require.NoError(t, d.RegisterObserver(observer))

	// Resolving packet: tag "stream1" binds sinkB to SSRC 300.
	assert.True(t, d.OnPacket(packet.NewWithStreamID(300, "stream1")))
	assert.Equal(t, []uint32{300}, sinkB.ssrcs())
	assert.Equal(t, []resolution{{"stream1", 300}}, observer.resolutions)

	// Resolution is consumed: the same tag with a different SSRC must not
	// associate sinkB with 400. Observers still hear about the tag, since
	// notification does not depend on sinks being registered under it.
	assert.False(t, d.OnPacket(packet.NewWithStreamID(400, "stream1")))
	assert.Equal(t, []uint32{300}, sinkB.ssrcs())
	assert.Equal(t, []resolution{{"stream1", 300}, {"stream1", 400}}, observer.resolutions)

	// The promoted association keeps routing by SSRC.
	assert.True(t, d.OnPacket(packet.New(300)))
	assert.Equal(t, []uint32{300, 300}, sinkB.ssrcs())

	d.RemoveSink(sinkB)
	require.NoError(t, d.DeregisterObserver(observer))
	assert.NoError(t, d.Close())
}

func TestMultiSinkStreamIDFanOut(t *testing.T) {
	d := NewDemuxer()
	sinkA := &mockSink{}
	sinkB := &mockSink{}
	require.NoError(t, d.AddStreamIDSink("shared", sinkA))
	require.NoError(t, d.AddStreamIDSink("shared", sinkB))

	assert.True(t, d.OnPacket(packet.NewWithStreamID(500, "shared")))
	assert.Equal(t, []uint32{500}, sinkA.ssrcs())
	assert.Equal(t, []uint32{500}, sinkB.ssrcs())

	d.RemoveSink(sinkA)
	d.RemoveSink(sinkB)
}

func TestBoundedCache(t *testing.T) {
	d := NewDemuxerWithCacheSize(4)
	sink := &mockSink{}
	require.NoError(t, d.AddSink(100, sink))

	// Far more distinct SSRCs than the cache holds.
	for ssrc := uint32(1000); ssrc < 1100; ssrc++ {
		d.OnPacket(packet.New(ssrc))
	}
	assert.LessOrEqual(t, len(d.processedSSRCs), 4)
	assert.True(t, d.warnedCacheFull)

	// Direct routing still works under cache pressure.
	assert.True(t, d.OnPacket(packet.New(100)))
	assert.Equal(t, []uint32{100}, sink.ssrcs())

	d.RemoveSink(sink)
}

func TestUncachedSSRCStillResolves(t *testing.T) {
	// Once the cache is full, new SSRCs re-run resolution every packet;
	// associations must not be lost. Register first: registration clears
	// the cache, so fill it afterwards.
	d := NewDemuxerWithCacheSize(2)
	sink := &mockSink{}
	require.NoError(t, d.AddStreamIDSink("late", sink))
	for ssrc := uint32(1); ssrc <= 2; ssrc++ {
		d.OnPacket(packet.New(ssrc))
	}
	assert.Len(t, d.processedSSRCs, 2)

	assert.True(t, d.OnPacket(packet.NewWithStreamID(900, "late")))
	assert.Equal(t, []uint32{900}, sink.ssrcs())
	assert.Len(t, d.processedSSRCs, 2, "full cache must not grow")

	d.RemoveSink(sink)
}

func TestRemoveSinkReachesBothTables(t *testing.T) {
	d := NewDemuxer()
	sink := &mockSink{}
	require.NoError(t, d.AddSink(100, sink))
	require.NoError(t, d.AddStreamIDSink("stream1", sink))

	assert.True(t, d.RemoveSink(sink))
	assert.NoError(t, d.Close(), "one removal must clear both tables")

	assert.False(t, d.OnPacket(packet.New(100)))
	assert.False(t, d.OnPacket(packet.NewWithStreamID(300, "stream1")))
	assert.Empty(t, sink.received)
}

func TestLateObserverNotNotifiedRetroactively(t *testing.T) {
	d := NewDemuxer()
	sink := &mockSink{}
	require.NoError(t, d.AddStreamIDSink("stream1", sink))
	assert.True(t, d.OnPacket(packet.NewWithStreamID(300, "stream1")))

	late := &mockObserver{}
	require.NoError(t, d.RegisterObserver(late))
	assert.Empty(t, late.resolutions, "registration must not replay past events")

	// The tag was consumed before the observer existed; the stream no
	// longer announcing it produces no event either.
	d.OnPacket(packet.New(300))
	assert.Empty(t, late.resolutions)

	d.RemoveSink(sink)
	require.NoError(t, d.DeregisterObserver(late))
}

func TestObserverOrderAndContract(t *testing.T) {
	d := NewDemuxer()
	first := &mockObserver{}
	second := &mockObserver{}

	require.NoError(t, d.RegisterObserver(first))
	require.NoError(t, d.RegisterObserver(second))
	assert.ErrorIs(t, d.RegisterObserver(first), ErrDuplicateObserver)

	// Observers fire even when no sink is registered under the tag.
	d.OnPacket(packet.NewWithStreamID(300, "unclaimed"))
	assert.Equal(t, []resolution{{"unclaimed", 300}}, first.resolutions)
	assert.Equal(t, []resolution{{"unclaimed", 300}}, second.resolutions)

	require.NoError(t, d.DeregisterObserver(first))
	assert.ErrorIs(t, d.DeregisterObserver(first), ErrUnknownObserver)
	require.NoError(t, d.DeregisterObserver(second))
}

func TestRegistrationInvalidatesCache(t *testing.T) {
	d := NewDemuxer()

	// SSRC 300 gets processed while no mapping for its tag exists.
	d.OnPacket(packet.NewWithStreamID(300, "stream1"))

	// Registering a stream id sink clears the cache, so the next tagged
	// packet resolves against the new mapping.
	sink := &mockSink{}
	require.NoError(t, d.AddStreamIDSink("stream1", sink))
	assert.True(t, d.OnPacket(packet.NewWithStreamID(300, "stream1")))
	assert.Equal(t, []uint32{300}, sink.ssrcs())

	d.RemoveSink(sink)
}

func TestUntaggedCachedSSRCSkipsLaterTags(t *testing.T) {
	// An SSRC cached from an untagged packet takes the fast path forever:
	// a later packet with the same SSRC and a valid tag is not resolved.
	d := NewDemuxer()
	d.OnPacket(packet.New(300))

	sink := &mockSink{}
	observer := &mockObserver{}
	// Observer registration clears the cache, so register before the
	// untagged packet is re-seen to pin the cached state first.
	require.NoError(t, d.RegisterObserver(observer))
	d.OnPacket(packet.New(300))

	// The sink registration clears the cache again; re-cache 300 untagged
	// before the tagged packet arrives.
	require.NoError(t, d.AddStreamIDSink("stream1", sink))
	d.OnPacket(packet.New(300))

	assert.False(t, d.OnPacket(packet.NewWithStreamID(300, "stream1")))
	assert.Empty(t, sink.received)
	assert.Empty(t, observer.resolutions)

	d.RemoveSink(sink)
	require.NoError(t, d.DeregisterObserver(observer))
}

func TestCloseWithLiveRegistrations(t *testing.T) {
	d := NewDemuxer()
	sink := &mockSink{}
	require.NoError(t, d.AddSink(100, sink))
	assert.ErrorIs(t, d.Close(), ErrSinksRemaining)

	d.RemoveSink(sink)
	assert.NoError(t, d.Close())
}
