package command

import (
	"fmt"

	"github.com/dukex/gridfn/pkg/models"
	"github.com/dukex/gridfn/pkg/wire"
)

// partReader walks a message's parts front to back. Variable length sets
// shift every later offset, so positions are never computed by hand.
type partReader struct {
	msg    *wire.Message
	codec  *wire.Codec
	cursor int
}

func newPartReader(msg *wire.Message, codec *wire.Codec) *partReader {
	return &partReader{msg: msg, codec: codec}
}

// position is the index of the next part.
func (r *partReader) position() int {
	return r.cursor
}

// next returns the next part, failing when the message ran out.
func (r *partReader) next() (*wire.Part, error) {
	p := r.optional()
	if p == nil {
		return nil, fmt.Errorf("%w: part %d", ErrMissingPart, r.cursor-1)
	}

	return p, nil
}

// optional returns the next part or nil, advancing the cursor either way.
func (r *partReader) optional() *wire.Part {
	p := r.msg.Part(r.cursor)
	r.cursor++

	return p
}

// readSet reads a size part followed by that many entries.
func (r *partReader) readSet() (models.IDSet, error) {
	sizePart, err := r.next()
	if err != nil {
		return models.IDSet{}, err
	}

	size, err := sizePart.Int()
	if err != nil {
		return models.IDSet{}, err
	}

	if size < 0 {
		return models.IDSet{}, fmt.Errorf("%w: %d", ErrNegativeSize, size)
	}

	var set models.IDSet

	for i := int32(0); i < size; i++ {
		p, err := r.next()
		if err != nil {
			return models.IDSet{}, err
		}

		v, err := p.StringOrObject(r.codec)
		if err != nil {
			return models.IDSet{}, err
		}

		err = set.Add(v)
		if err != nil {
			return models.IDSet{}, err
		}
	}

	return set, nil
}
