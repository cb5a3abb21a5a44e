package soundfont

import (
	"errors"
	"fmt"
)

// ErrFormat is wrapped by every structural decoding failure
var ErrFormat = errors.New("invalid soundfont")

// FormatError describes a malformed, truncated or misordered container
type FormatError struct {
	Chunk  string
	Offset int
	Reason string
}

func (e *FormatError) Error() string {
	if e.Chunk == "" {
		return fmt.Sprintf("invalid soundfont: %s", e.Reason)
	}
	return fmt.Sprintf("invalid soundfont: %s chunk: %s", e.Chunk, e.Reason)
}

// Unwrap lets errors.Is match ErrFormat
func (e *FormatError) Unwrap() error {
	return ErrFormat
}
