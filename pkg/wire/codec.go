package wire

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// TagBase is the first CBOR tag number handed out to application types.
// Tags at or above it that are not registered decode as ErrUnknownType.
const TagBase uint64 = 40000

var ErrUnknownType = errors.New("unknown serialized type")

// Codec serializes object parts. Every concrete type that travels inside an
// object part has to be registered under a stable tag so the peer can
// reconstruct it.
type Codec struct {
	tags cbor.TagSet
	enc  cbor.EncMode
	dec  cbor.DecMode
}

func NewCodec() (*Codec, error) {
	tags := cbor.NewTagSet()

	enc, err := cbor.EncOptions{Sort: cbor.SortCanonical}.EncModeWithSharedTags(tags)
	if err != nil {
		return nil, fmt.Errorf("failed to build cbor encoder: %w", err)
	}

	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecModeWithSharedTags(tags)
	if err != nil {
		return nil, fmt.Errorf("failed to build cbor decoder: %w", err)
	}

	return &Codec{tags: tags, enc: enc, dec: dec}, nil
}

// Register binds the concrete type of sample to tag (relative to TagBase).
func (c *Codec) Register(sample any, tag uint64) error {
	t := reflect.TypeOf(sample)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	err := c.tags.Add(cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagRequired}, t, TagBase+tag)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", t, err)
	}

	return nil
}

func (c *Codec) Marshal(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

// Unmarshal decodes into the registered Go type when the payload is tagged.
func (c *Codec) Unmarshal(data []byte) (any, error) {
	var v any

	err := c.dec.Unmarshal(data, &v)
	if err != nil {
		return nil, err
	}

	if tag, ok := v.(cbor.Tag); ok && tag.Number >= TagBase {
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownType, tag.Number-TagBase)
	}

	return v, nil
}

// UnmarshalInto decodes data into out.
func (c *Codec) UnmarshalInto(data []byte, out any) error {
	return c.dec.Unmarshal(data, out)
}
