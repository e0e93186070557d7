// Package protocol defines what client and server agree on before and
// after the WebSocket upgrade: the protocol version, the payload format and
// the events exchanged once a session is admitted.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// ErrMalformedVersion is returned when a version string cannot be parsed.
var ErrMalformedVersion = errors.New("malformed version")

// buildVersion is replaced at link time:
//
//	go build -ldflags "-X github.com/omochice/monrst/pkg/protocol.buildVersion=1.2.3"
var buildVersion = "0.1.0"

// Version is a subset of Semantic Versioning 2.0.0: MAJOR.MINOR.PATCH with an
// optional opaque label after a dash.
type Version struct {
	Major uint64
	Minor uint64
	Patch uint64
	Label string
}

// ServerVersion returns the protocol version of this build.
// It is parsed once and never changes afterwards.
var ServerVersion = sync.OnceValue(func() Version {
	v, err := ParseVersion(buildVersion)
	if err != nil {
		panic(fmt.Sprintf("protocol: build version %q: %v", buildVersion, err))
	}
	return v
})

// ParseVersion parses "MAJOR.MINOR.PATCH" or "MAJOR.MINOR.PATCH-LABEL".
// The label is opaque and may be empty: "1.2.3-" is 1.2.3.
func ParseVersion(s string) (Version, error) {
	core, label, _ := strings.Cut(s, "-")

	fields := strings.Split(core, ".")
	if len(fields) != 3 {
		return Version{}, fmt.Errorf("%w: %q needs exactly three numeric fields", ErrMalformedVersion, s)
	}

	var numbers [3]uint64
	for i, field := range fields {
		n, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q: field %q is not a non-negative integer", ErrMalformedVersion, s, field)
		}
		numbers[i] = n
	}

	return Version{
		Major: numbers[0],
		Minor: numbers[1],
		Patch: numbers[2],
		Label: label,
	}, nil
}

// String renders the version in the form accepted by ParseVersion.
func (v Version) String() string {
	if v.Label == "" {
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	}
	return fmt.Sprintf("%d.%d.%d-%s", v.Major, v.Minor, v.Patch, v.Label)
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// AreCompatible reports whether peers speaking a and b can talk to each other.
// Majors must match. While the major is 0 every minor release may break the
// protocol, so the minors must match too. Patch and label never matter.
func AreCompatible(a, b Version) bool {
	return a.Major == b.Major && (a.Major != 0 || a.Minor == b.Minor)
}
