// Package streamid validates RTP stream identifiers.
// This ensures consistent validation between the demultiplexer and callers
// that construct identifiers from signaling.
package streamid

import (
	"errors"
	"fmt"
)

const (
	// MaxLength is the maximum length of a stream identifier in bytes.
	// RFC 8852 does not mandate an upper bound, but identifiers longer
	// than this are rejected to keep table keys small and comparisons cheap.
	MaxLength = 16
)

var (
	// ErrEmpty indicates an empty stream identifier was provided.
	ErrEmpty = errors.New("empty stream id")

	// ErrTooLong indicates a stream identifier exceeds MaxLength.
	ErrTooLong = errors.New("stream id too long")

	// ErrIllegalChar indicates a character outside the legal set.
	ErrIllegalChar = errors.New("illegal character in stream id")
)

// IsLegal reports whether id satisfies the stream identifier grammar:
// one to MaxLength characters drawn from [A-Za-z0-9_-] (RFC 8852 rid-id).
func IsLegal(id string) bool {
	return Validate(id) == nil
}

// Validate checks id against the stream identifier grammar.
// Returns an error with context identifying the first violation.
func Validate(id string) error {
	if len(id) == 0 {
		return ErrEmpty
	}
	if len(id) > MaxLength {
		return fmt.Errorf("%w: length %d exceeds limit %d", ErrTooLong, len(id), MaxLength)
	}
	for i := 0; i < len(id); i++ {
		if !isLegalChar(id[i]) {
			return fmt.Errorf("%w: %q at position %d", ErrIllegalChar, id[i], i)
		}
	}
	return nil
}

func isLegalChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z',
		c >= 'A' && c <= 'Z',
		c >= '0' && c <= '9',
		c == '-', c == '_':
		return true
	}
	return false
}
