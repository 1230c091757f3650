package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrShortPart = errors.New("part too short")

// Part is one opaque element of a message. Object parts carry a serialized
// value, others carry raw bytes (strings, integers, flag bytes).
type Part struct {
	Data   []byte
	Object bool
}

func NewStringPart(s string) Part {
	return Part{Data: []byte(s)}
}

func NewBytesPart(b []byte) Part {
	return Part{Data: b}
}

func NewBytePart(b byte) Part {
	return Part{Data: []byte{b}}
}

func NewIntPart(v int32) Part {
	return Part{Data: EncodeInt(v)}
}

// NewObjectPart serializes v with codec.
func NewObjectPart(codec *Codec, v any) (Part, error) {
	data, err := codec.Marshal(v)
	if err != nil {
		return Part{}, err
	}

	return Part{Data: data, Object: true}, nil
}

func (p Part) Bytes() []byte {
	return p.Data
}

func (p Part) String() string {
	return string(p.Data)
}

// Int decodes a big-endian int32.
func (p Part) Int() (int32, error) {
	return DecodeInt(p.Data, 0)
}

// Decode deserializes an object part. A non-object part is returned as its
// string form.
func (p Part) Decode(codec *Codec) (any, error) {
	if !p.Object {
		return p.String(), nil
	}

	return codec.Unmarshal(p.Data)
}

// StringOrObject returns the string for plain parts and the decoded value
// for object parts.
func (p Part) StringOrObject(codec *Codec) (any, error) {
	return p.Decode(codec)
}

func EncodeInt(v int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))

	return b
}

// DecodeInt reads a big-endian int32 at offset.
func DecodeInt(b []byte, offset int) (int32, error) {
	if len(b) < offset+4 {
		return 0, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortPart, 4, offset, len(b))
	}

	return int32(binary.BigEndian.Uint32(b[offset:])), nil
}
