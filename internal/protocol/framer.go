package protocol

import (
	"bytes"
	"errors"
)

// Terminator ends every message on the wire
const Terminator = '\n'

// DefaultMaxPending bounds the bytes a framer holds while waiting for a terminator
const DefaultMaxPending = 64 * 1024

// ErrMessageTooLarge is returned when buffered bytes exceed the framer limit
var ErrMessageTooLarge = errors.New("message exceeds maximum size")

// Framer turns a byte stream into newline-delimited messages.
// A Framer belongs to exactly one connection and is not safe for concurrent use.
type Framer struct {
	buf        []byte
	maxPending int
}

// NewFramer creates a Framer; maxPending <= 0 uses DefaultMaxPending
func NewFramer(maxPending int) *Framer {
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	return &Framer{maxPending: maxPending}
}

// Feed appends data and returns every complete message in arrival order.
// Messages are trimmed of surrounding whitespace and empty ones are dropped.
// Bytes after the last terminator stay buffered for the next call.
func (f *Framer) Feed(data []byte) ([]string, error) {
	f.buf = append(f.buf, data...)

	var messages []string
	for {
		idx := bytes.IndexByte(f.buf, Terminator)
		if idx < 0 {
			break
		}
		line := bytes.TrimSpace(f.buf[:idx])
		if len(line) > 0 {
			messages = append(messages, string(line))
		}
		f.buf = f.buf[idx+1:]
	}

	// Release the backing array once fully consumed
	if len(f.buf) == 0 {
		f.buf = nil
	}

	if len(f.buf) > f.maxPending {
		f.buf = nil
		return messages, ErrMessageTooLarge
	}
	return messages, nil
}

// Pending returns the number of buffered bytes without a terminator yet
func (f *Framer) Pending() int {
	return len(f.buf)
}
