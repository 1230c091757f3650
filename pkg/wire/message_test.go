package wire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_WriteRead(t *testing.T) {
	t.Parallel()

	msg := &Message{
		Type:          MessageExecuteRegionFunction,
		TransactionID: 42,
		Parts: []Part{
			NewBytePart(2),
			NewStringPart("orders"),
			{Data: []byte{0xa0}, Object: true},
			NewBytesPart(nil),
		},
	}

	var buf bytes.Buffer

	n, err := msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, msg.Type, got.Type)
	assert.Equal(t, msg.TransactionID, got.TransactionID)
	require.Len(t, got.Parts, 4)
	assert.Equal(t, "orders", got.Parts[1].String())
	assert.True(t, got.Parts[2].Object)
	assert.Empty(t, got.Parts[3].Data)
}

func TestMessage_Part(t *testing.T) {
	t.Parallel()

	msg := &Message{Parts: []Part{NewStringPart("a")}}

	require.NotNil(t, msg.Part(0))
	assert.Nil(t, msg.Part(1))
	assert.Nil(t, msg.Part(-1))
}

func TestReadMessage_RejectsChunks(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cm := NewChunkedMessage(&buf, MessageExecuteRegionFunctionResult)
	require.NoError(t, cm.SendHeader())

	_, err := ReadMessage(&buf)
	require.ErrorIs(t, err, ErrUnexpectedFrame)
}

func TestReadMessage_Limits(t *testing.T) {
	t.Parallel()

	t.Run("too many parts", func(t *testing.T) {
		t.Parallel()

		b := []byte{byte(FrameMessage)}
		b = binary.BigEndian.AppendUint32(b, uint32(MessagePing))
		b = binary.BigEndian.AppendUint32(b, maxParts+1)
		b = binary.BigEndian.AppendUint32(b, 1)

		_, err := ReadMessage(bytes.NewReader(b))
		require.ErrorIs(t, err, ErrTooManyParts)
	})

	t.Run("part too large", func(t *testing.T) {
		t.Parallel()

		b := []byte{byte(FrameMessage)}
		b = binary.BigEndian.AppendUint32(b, uint32(MessagePing))
		b = binary.BigEndian.AppendUint32(b, 1)
		b = binary.BigEndian.AppendUint32(b, 1)
		b = binary.BigEndian.AppendUint32(b, maxPartSize+1)
		b = append(b, 0)

		_, err := ReadMessage(bytes.NewReader(b))
		require.ErrorIs(t, err, ErrPartTooLarge)
	})
}

func TestMessageType_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "EXECUTE_REGION_FUNCTION_RESULT", MessageExecuteRegionFunctionResult.String())
	assert.Equal(t, "MessageType(99)", MessageType(99).String())
}

func TestVersion_Ordering(t *testing.T) {
	t.Parallel()

	assert.Less(t, V80, V8009)
	assert.Less(t, V8009, V81)
	assert.Less(t, V81, V82)
	assert.Equal(t, V90, Current)
	assert.Equal(t, "8.0.0.9", V8009.String())
	assert.Equal(t, "Version(7)", Version(7).String())
}
