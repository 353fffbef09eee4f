/*
Package wire implements the binary encoding used between a quantization
session and an isolated worker process.

A conversation is a sequence of frames. Each frame is a one byte tag, a
little-endian uint32 payload length and the payload. The parent sends a
single request frame; the worker answers with any number of progress
frames, at most one partial frame and exactly one completed or failed frame.
*/
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Tag identifies the payload of a frame.
type Tag uint8

const (
	// TagRequest carries a Request.
	TagRequest Tag = iota + 1
	// TagProgress carries a single percentage byte.
	TagProgress
	// TagPartial carries a Result without pixel indices.
	TagPartial
	// TagCompleted carries the final Result.
	TagCompleted
	// TagFailed carries an encoded error.
	TagFailed
)

func (t Tag) String() string {
	switch t {
	case TagRequest:
		return "request"
	case TagProgress:
		return "progress"
	case TagPartial:
		return "partial"
	case TagCompleted:
		return "completed"
	case TagFailed:
		return "failed"
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

const (
	frameHeaderLen = 5
	// MaxFrameSize bounds a single payload.
	MaxFrameSize = 1 << 30
)

var (
	// ErrMalformed is returned when data cannot be decoded.
	ErrMalformed = errors.New("wire: malformed data")
	// ErrFrameTooLarge is returned for payloads over MaxFrameSize.
	ErrFrameTooLarge = errors.New("wire: frame too large")
)

// WriteFrame writes one frame to w.
func WriteFrame(w io.Writer, tag Tag, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	var hdr [frameHeaderLen]byte
	hdr[0] = byte(tag)
	binary.LittleEndian.PutUint32(hdr[1:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one frame from r. A clean end of stream before the tag
// is reported as io.EOF, anywhere else as io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) (Tag, []byte, error) {
	var hdr [frameHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	n := binary.LittleEndian.Uint32(hdr[1:])
	if n > MaxFrameSize {
		return 0, nil, ErrFrameTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, err
	}
	return Tag(hdr[0]), payload, nil
}
