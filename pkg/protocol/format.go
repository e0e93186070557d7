package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownFormat is returned when a format name is not supported.
var ErrUnknownFormat = errors.New("unknown format")

// Format is the payload encoding used on an admitted connection.
type Format int

const (
	FormatBinary Format = iota
	FormatJSON
)

// ParseFormat matches "binary" or "json", ignoring case.
func ParseFormat(s string) (Format, error) {
	switch {
	case strings.EqualFold(s, "binary"):
		return FormatBinary, nil
	case strings.EqualFold(s, "json"):
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// String returns the string representation of Format
func (f Format) String() string {
	switch f {
	case FormatBinary:
		return "binary"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// Configuration is the outcome of a successful handshake. The session layer
// frames and decodes all further traffic according to it.
type Configuration struct {
	Format Format
}
