package wire

import "fmt"

// Version is a client protocol version ordinal, negotiated during the
// handshake. Ordinals only ever grow.
type Version int16

const (
	V80     Version = 40
	V8009   Version = 41
	V81     Version = 42
	V82     Version = 45
	V90     Version = 55
	Current Version = V90
)

func (v Version) String() string {
	switch v {
	case V80:
		return "8.0"
	case V8009:
		return "8.0.0.9"
	case V81:
		return "8.1"
	case V82:
		return "8.2"
	case V90:
		return "9.0"
	default:
		return fmt.Sprintf("Version(%d)", int16(v))
	}
}
