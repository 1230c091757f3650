package models

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var ErrNotComparable = errors.New("identifier is not comparable")

var canonicalEncoder, _ = cbor.CoreDetEncOptions().EncMode()

// canonicalKey indexes identifiers Go cannot compare (byte strings, arrays,
// maps) by their deterministic CBOR encoding.
type canonicalKey string

// IDSet is an insertion ordered set of opaque identifiers (keys, bucket ids
// or member ids). Integer identifiers are normalized to int64 so that ids
// decoded from different integer widths compare equal.
type IDSet struct {
	order []any
	index map[any]struct{}
}

func NewIDSet(values ...any) (IDSet, error) {
	var s IDSet

	for _, v := range values {
		err := s.Add(v)
		if err != nil {
			return IDSet{}, err
		}
	}

	return s, nil
}

// MustIDSet is NewIDSet for literal values.
func MustIDSet(values ...any) IDSet {
	s, err := NewIDSet(values...)
	if err != nil {
		panic(err)
	}

	return s
}

// Add inserts v, keeping the value as given for the engine.
func (s *IDSet) Add(v any) error {
	v = NormalizeID(v)

	key, err := indexKey(v)
	if err != nil {
		return err
	}

	if s.index == nil {
		s.index = make(map[any]struct{})
	}

	if _, ok := s.index[key]; ok {
		return nil
	}

	s.index[key] = struct{}{}
	s.order = append(s.order, v)

	return nil
}

func (s IDSet) Contains(v any) bool {
	key, err := indexKey(NormalizeID(v))
	if err != nil {
		return false
	}

	_, ok := s.index[key]

	return ok
}

func indexKey(v any) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil", ErrNotComparable)
	}

	if reflect.TypeOf(v).Comparable() {
		return v, nil
	}

	data, err := canonicalEncoder.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %T: %w", ErrNotComparable, v, err)
	}

	return canonicalKey(data), nil
}

func (s IDSet) Len() int {
	return len(s.order)
}

func (s IDSet) Empty() bool {
	return len(s.order) == 0
}

// Values returns a copy of the elements in insertion order.
func (s IDSet) Values() []any {
	return append([]any(nil), s.order...)
}

// Minus returns the elements of s that are not in other.
func (s IDSet) Minus(other IDSet) IDSet {
	var out IDSet

	for _, v := range s.order {
		if !other.Contains(v) {
			_ = out.Add(v)
		}
	}

	return out
}

// Ints returns the elements that are integers, in order.
func (s IDSet) Ints() []int {
	out := make([]int, 0, len(s.order))

	for _, v := range s.order {
		if i, ok := v.(int64); ok {
			out = append(out, int(i))
		}
	}

	return out
}

// Strings renders every element, for logs and persistence.
func (s IDSet) Strings() []string {
	out := make([]string, 0, len(s.order))
	for _, v := range s.order {
		out = append(out, fmt.Sprint(v))
	}

	return out
}

// NormalizeID widens every integer kind to int64.
func NormalizeID(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	default:
		return v
	}
}
