package quantize

import "errors"

var (
	// ErrInvalidSettings is returned when a settings field is outside its
	// legal range.
	ErrInvalidSettings = errors.New("quantize: invalid settings")
	// ErrInvalidImage is returned for empty or malformed source images.
	ErrInvalidImage = errors.New("quantize: invalid image")
)
