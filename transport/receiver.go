// Package transport feeds received UDP datagrams into the demultiplexers.
//
// A Receiver owns one UDP socket carrying multiplexed RTP and RTCP
// (RFC 5761), classifies each datagram, and routes it through a
// rtpdemux.Demuxer or rtpdemux.RTCPDemuxer. The demultiplexers take no
// locks of their own, so the Receiver serializes every call to them with
// one mutex; its registration methods are safe for concurrent use.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/rtpdemux"
	"github.com/opd-ai/rtpdemux/packet"
)

// Receiver reads datagrams from a UDP socket and routes them.
type Receiver struct {
	conn   net.PacketConn
	extmap packet.ExtensionMap

	mu   sync.Mutex
	rtp  *rtpdemux.Demuxer
	rtcp *rtpdemux.RTCPDemuxer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReceiver opens the configured UDP socket and starts the read loop.
//
// Parameters:
//   - cfg: Receiver configuration; see Config
//
// Returns:
//   - *Receiver: The running receiver
//   - error: Config validation or socket errors
func NewReceiver(cfg Config) (*Receiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conn, err := net.ListenPacket("udp", cfg.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("listen on %q: %w", cfg.ListenAddress, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	r := &Receiver{
		conn:   conn,
		extmap: packet.ExtensionMap{StreamIDExtensionID: cfg.StreamIDExtensionID},
		rtp:    rtpdemux.NewDemuxerWithCacheSize(cfg.MaxProcessedSSRCs),
		rtcp:   rtpdemux.NewRTCPDemuxer(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go r.readLoop()

	logrus.WithFields(logrus.Fields{
		"function":    "NewReceiver",
		"listen_addr": conn.LocalAddr().String(),
	}).Info("Receiver started")

	return r, nil
}

// LocalAddr returns the address the receiver is bound to.
func (r *Receiver) LocalAddr() net.Addr {
	return r.conn.LocalAddr()
}

// AddSink registers sink for packets carrying the given SSRC.
func (r *Receiver) AddSink(ssrc uint32, sink rtpdemux.PacketSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rtp.AddSink(ssrc, sink)
}

// AddStreamIDSink registers sink for the stream identified by id,
// pending SSRC resolution.
func (r *Receiver) AddStreamIDSink(id string, sink rtpdemux.PacketSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rtp.AddStreamIDSink(id, sink)
}

// RemoveSink removes every RTP association involving sink.
func (r *Receiver) RemoveSink(sink rtpdemux.PacketSink) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rtp.RemoveSink(sink)
}

// RegisterObserver adds a stream resolution observer.
func (r *Receiver) RegisterObserver(observer rtpdemux.ResolutionObserver) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rtp.RegisterObserver(observer)
}

// DeregisterObserver removes a stream resolution observer.
func (r *Receiver) DeregisterObserver(observer rtpdemux.ResolutionObserver) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rtp.DeregisterObserver(observer)
}

// AddRTCPSink registers sink for RTCP referencing the given SSRC.
func (r *Receiver) AddRTCPSink(ssrc uint32, sink rtpdemux.RTCPSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rtcp.AddSink(ssrc, sink)
}

// AddRTCPBroadcastSink registers sink for every RTCP compound packet.
func (r *Receiver) AddRTCPBroadcastSink(sink rtpdemux.RTCPSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rtcp.AddBroadcastSink(sink)
}

// RemoveRTCPSink removes every RTCP registration involving sink.
func (r *Receiver) RemoveRTCPSink(sink rtpdemux.RTCPSink) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rtcp.RemoveSink(sink)
}

// Close stops the read loop and closes the socket. Sinks registered
// through the receiver should be removed first; Close reports the
// demultiplexers' teardown errors after the socket error, if any.
func (r *Receiver) Close() error {
	r.cancel()
	err := r.conn.Close()
	<-r.done

	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		err = errors.Join(r.rtp.Close(), r.rtcp.Close())
	}

	logrus.WithFields(logrus.Fields{
		"function": "Close",
	}).Info("Receiver stopped")
	return err
}

// readLoop drains the socket until the context is cancelled.
func (r *Receiver) readLoop() {
	defer close(r.done)
	buffer := make([]byte, 2048)

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
			r.readDatagram(buffer)
		}
	}
}

// readDatagram reads one datagram with a short deadline so cancellation
// is noticed promptly, then dispatches it.
func (r *Receiver) readDatagram(buffer []byte) {
	_ = r.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

	n, _, err := r.conn.ReadFrom(buffer)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return
		}
		if errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrDeadlineExceeded) {
			return
		}
		logrus.WithFields(logrus.Fields{
			"function": "readDatagram",
			"error":    err,
		}).Warn("Socket read failed")
		return
	}

	// The parsed packet keeps references into the buffer, so each
	// datagram gets its own copy.
	r.dispatchDatagram(append([]byte(nil), buffer[:n]...))
}

func (r *Receiver) dispatchDatagram(data []byte) {
	if isRTCP(data) {
		r.mu.Lock()
		matched := r.rtcp.OnPacket(data)
		r.mu.Unlock()
		if !matched {
			logrus.WithFields(logrus.Fields{
				"function": "dispatchDatagram",
			}).Debug("RTCP datagram matched no sink")
		}
		return
	}

	p, err := packet.Parse(data, r.extmap)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "dispatchDatagram",
			"error":    err,
		}).Debug("Dropping malformed RTP datagram")
		return
	}

	r.mu.Lock()
	matched := r.rtp.OnPacket(p)
	r.mu.Unlock()
	if !matched {
		logrus.WithFields(logrus.Fields{
			"function": "dispatchDatagram",
			"ssrc":     p.SSRC(),
		}).Debug("RTP packet matched no sink")
	}
}

// isRTCP classifies a datagram on a multiplexed socket: RTCP packet
// types occupy 192-223 in the second octet (RFC 5761 section 4).
func isRTCP(data []byte) bool {
	return len(data) >= 2 && data[1] >= 192 && data[1] <= 223
}
