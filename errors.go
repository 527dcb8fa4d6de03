package rtpdemux

import "errors"

// Sentinel errors for demultiplexer operations.
// These errors indicate caller contract violations and enable reliable
// classification using errors.Is().

var (
	// ErrNilSink indicates a nil sink reference was passed.
	ErrNilSink = errors.New("sink cannot be nil")

	// ErrNilObserver indicates a nil observer reference was passed.
	ErrNilObserver = errors.New("observer cannot be nil")

	// ErrDuplicateSink indicates the (stream id, sink) pair is already
	// registered.
	ErrDuplicateSink = errors.New("sink already registered for stream id")

	// ErrDuplicateObserver indicates the observer is already registered.
	ErrDuplicateObserver = errors.New("observer already registered")

	// ErrUnknownObserver indicates a deregistration for an observer that
	// was never registered.
	ErrUnknownObserver = errors.New("observer not registered")

	// ErrSinksRemaining indicates Close was called while sink
	// registrations remain. Every sink must be removed before the
	// demultiplexer is discarded.
	ErrSinksRemaining = errors.New("demuxer closed with sinks still registered")
)
