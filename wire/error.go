package wire

import (
	"errors"

	"github.com/bodgit/tpq/quantize"
)

// Errors cross the process boundary as a kind byte followed by the message
// text so that the sentinel survives for errors.Is.
const (
	kindOther uint8 = iota
	kindInvalidSettings
	kindInvalidImage
)

var kinds = map[uint8]error{
	kindInvalidSettings: quantize.ErrInvalidSettings,
	kindInvalidImage:    quantize.ErrInvalidImage,
}

type remoteError struct {
	msg  string
	kind error
}

func (e *remoteError) Error() string {
	return e.msg
}

func (e *remoteError) Unwrap() error {
	return e.kind
}

// MarshalError encodes err for a failed frame.
func MarshalError(err error) []byte {
	kind := kindOther
	for k, sentinel := range kinds {
		if errors.Is(err, sentinel) {
			kind = k
		}
	}
	return append([]byte{kind}, err.Error()...)
}

// UnmarshalError decodes the payload of a failed frame.
func UnmarshalError(b []byte) error {
	if len(b) == 0 {
		return ErrMalformed
	}
	return &remoteError{msg: string(b[1:]), kind: kinds[b[0]]}
}
