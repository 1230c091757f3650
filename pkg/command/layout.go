package command

import (
	"fmt"

	"github.com/dukex/gridfn/pkg/models"
	"github.com/dukex/gridfn/pkg/wire"
)

const (
	reExecuteMask       byte = 0x01
	bucketsAsFilterMask byte = 0x02
)

// stateHeader is the decoded form of part 0.
type stateHeader struct {
	State         models.FunctionState
	TimeoutMillis int32
	HasTimeout    bool
}

// executeFlags is the decoded form of part 5.
type executeFlags struct {
	BucketsAsFilter bool
	IsReExecute     bool
}

// layout is how one range of client versions lays out the version
// dependent parts.
type layout struct {
	since  wire.Version
	name   string
	header func(b []byte) (stateHeader, error)
	flags  func(b []byte) (executeFlags, error)
}

// layouts is ordered by since; the last entry not newer than the client
// version applies.
var layouts = []layout{
	{since: 0, name: "legacy", header: decodeStateOnly, flags: decodeLegacyFlags},
	{since: wire.V8009, name: "timeout", header: decodeStateWithTimeout, flags: decodeLegacyFlags},
	{since: wire.V81 + 1, name: "bit-flags", header: decodeStateWithTimeout, flags: decodeBitFlags},
}

func layoutFor(v wire.Version) layout {
	selected := layouts[0]

	for _, l := range layouts[1:] {
		if v >= l.since {
			selected = l
		}
	}

	return selected
}

func decodeStateOnly(b []byte) (stateHeader, error) {
	if len(b) < 1 {
		return stateHeader{}, fmt.Errorf("%w: empty function state", wire.ErrShortPart)
	}

	return stateHeader{State: models.FunctionState(b[0])}, nil
}

// decodeStateWithTimeout reads the timeout only when the client sent it.
func decodeStateWithTimeout(b []byte) (stateHeader, error) {
	h, err := decodeStateOnly(b)
	if err != nil {
		return h, err
	}

	if len(b) >= 5 {
		h.TimeoutMillis, err = wire.DecodeInt(b, 1)
		if err != nil {
			return h, err
		}

		h.HasTimeout = true
	}

	return h, nil
}

// decodeLegacyFlags treats the whole byte as the re-execute flag.
func decodeLegacyFlags(b []byte) (executeFlags, error) {
	if len(b) < 1 {
		return executeFlags{}, fmt.Errorf("%w: empty flags", wire.ErrShortPart)
	}

	return executeFlags{IsReExecute: b[0] == 1}, nil
}

func decodeBitFlags(b []byte) (executeFlags, error) {
	if len(b) < 1 {
		return executeFlags{}, fmt.Errorf("%w: empty flags", wire.ErrShortPart)
	}

	return executeFlags{
		BucketsAsFilter: b[0]&bucketsAsFilterMask != 0,
		IsReExecute:     b[0]&reExecuteMask != 0,
	}, nil
}
