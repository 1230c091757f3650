package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPart_Int(t *testing.T) {
	t.Parallel()

	for _, v := range []int32{0, 1, -1, 30000, -2147483648, 2147483647} {
		got, err := NewIntPart(v).Int()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	_, err := NewBytesPart([]byte{1, 2}).Int()
	require.ErrorIs(t, err, ErrShortPart)
}

func TestDecodeInt_Offset(t *testing.T) {
	t.Parallel()

	b := append([]byte{0x7}, EncodeInt(5000)...)

	got, err := DecodeInt(b, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(5000), got)

	_, err = DecodeInt(b[:4], 1)
	require.ErrorIs(t, err, ErrShortPart)
}

func TestPart_StringOrObject(t *testing.T) {
	t.Parallel()

	codec, err := NewCodec()
	require.NoError(t, err)

	plain, err := NewStringPart("orders").StringOrObject(codec)
	require.NoError(t, err)
	assert.Equal(t, "orders", plain)

	obj, err := NewObjectPart(codec, []any{"a", uint64(2)})
	require.NoError(t, err)
	assert.True(t, obj.Object)

	v, err := obj.StringOrObject(codec)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", uint64(2)}, v)
}
