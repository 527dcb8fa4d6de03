// Package rtpdemux routes inbound RTP packets to registered consumers.
//
// A Demuxer maintains a many-to-many association between routing keys and
// packet sinks. A key is either a synchronization source identifier
// (SSRC) or, for streams whose SSRC is not yet known to the receiver, a
// stream identifier tag (RFC 8852 rid) carried in packet metadata. The
// first time a packet arrives carrying a tag, every sink registered under
// that tag is promoted to a direct SSRC association, registered observers
// are notified, and the tag is consumed; subsequent packets for that
// stream route on the SSRC fast path.
//
// # Getting Started
//
// Register sinks, feed packets, remove sinks before discarding them:
//
//	demuxer := rtpdemux.NewDemuxer()
//
//	demuxer.AddSink(0x1234, audioSink)
//	if err := demuxer.AddStreamIDSink("cam0", videoSink); err != nil {
//	    log.Fatal(err)
//	}
//
//	for buf := range datagrams {
//	    p, err := packet.Parse(buf, extensionMap)
//	    if err != nil {
//	        continue
//	    }
//	    demuxer.OnPacket(p)
//	}
//
//	demuxer.RemoveSink(audioSink)
//	demuxer.RemoveSink(videoSink)
//	if err := demuxer.Close(); err != nil {
//	    log.Fatal(err)
//	}
//
// The transport subpackage provides a UDP receiver that performs the
// parse-and-feed loop, splits RTP from RTCP on a shared socket, and
// serializes access so the Demuxer itself can stay lock-free.
//
// # Resource Bounds
//
// Resolution results are cached per SSRC in a bounded set (1000 entries
// by default). Under an SSRC-churn attack the cache stops growing and a
// single warning is logged; routing stays correct, at the cost of
// re-running the (cheap) resolution check for uncached SSRCs.
package rtpdemux
