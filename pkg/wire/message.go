package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

type MessageType int32

const (
	MessageReply                       MessageType = 1
	MessageException                   MessageType = 2
	MessageRequestDataError            MessageType = 3
	MessagePing                        MessageType = 5
	MessageExecuteRegionFunction       MessageType = 59
	MessageExecuteRegionFunctionResult MessageType = 60
	MessageExecuteRegionFunctionError  MessageType = 61
)

func (t MessageType) String() string {
	switch t {
	case MessageReply:
		return "REPLY"
	case MessageException:
		return "EXCEPTION"
	case MessageRequestDataError:
		return "REQUEST_DATA_ERROR"
	case MessagePing:
		return "PING"
	case MessageExecuteRegionFunction:
		return "EXECUTE_REGION_FUNCTION"
	case MessageExecuteRegionFunctionResult:
		return "EXECUTE_REGION_FUNCTION_RESULT"
	case MessageExecuteRegionFunctionError:
		return "EXECUTE_REGION_FUNCTION_ERROR"
	default:
		return fmt.Sprintf("MessageType(%d)", int32(t))
	}
}

const (
	maxParts    = 1 << 16
	maxPartSize = 64 << 20
)

var (
	ErrTooManyParts = errors.New("too many parts")
	ErrPartTooLarge = errors.New("part too large")
)

// Message is a unary request or reply.
type Message struct {
	Type          MessageType
	TransactionID int32
	Parts         []Part
}

// Part returns part i, or nil when the message is shorter.
func (m *Message) Part(i int) *Part {
	if i < 0 || i >= len(m.Parts) {
		return nil
	}

	return &m.Parts[i]
}

// WriteTo frames the message as: kind | type | numParts | txID, then each
// part as length | isObject | bytes. All integers are big-endian int32.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	header := make([]byte, 13)
	header[0] = byte(FrameMessage)
	binary.BigEndian.PutUint32(header[1:], uint32(m.Type))
	binary.BigEndian.PutUint32(header[5:], uint32(len(m.Parts)))
	binary.BigEndian.PutUint32(header[9:], uint32(m.TransactionID))

	n, err := w.Write(header)
	total := int64(n)
	if err != nil {
		return total, err
	}

	written, err := writeParts(w, m.Parts)

	return total + written, err
}

// ReadMessage reads one unary message.
func ReadMessage(r io.Reader) (*Message, error) {
	frame, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}

	if frame.Kind != FrameMessage {
		return nil, fmt.Errorf("%w: expected message, got %s", ErrUnexpectedFrame, frame.Kind)
	}

	return frame.Message(), nil
}

func readCount(r io.Reader) (int, error) {
	b := make([]byte, 4)

	_, err := io.ReadFull(r, b)
	if err != nil {
		return 0, err
	}

	n := int32(binary.BigEndian.Uint32(b))
	if n < 0 || n > maxParts {
		return 0, fmt.Errorf("%w: %d", ErrTooManyParts, n)
	}

	return int(n), nil
}

func writeParts(w io.Writer, parts []Part) (int64, error) {
	var total int64

	for _, p := range parts {
		head := make([]byte, 5)
		binary.BigEndian.PutUint32(head, uint32(len(p.Data)))
		if p.Object {
			head[4] = 1
		}

		n, err := w.Write(head)
		total += int64(n)
		if err != nil {
			return total, err
		}

		n, err = w.Write(p.Data)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

func readParts(r io.Reader, n int) ([]Part, error) {
	parts := make([]Part, 0, n)

	for i := 0; i < n; i++ {
		head := make([]byte, 5)

		_, err := io.ReadFull(r, head)
		if err != nil {
			return nil, fmt.Errorf("failed to read part %d header: %w", i, err)
		}

		size := binary.BigEndian.Uint32(head)
		if size > maxPartSize {
			return nil, fmt.Errorf("%w: part %d is %d bytes", ErrPartTooLarge, i, size)
		}

		data := make([]byte, size)

		_, err = io.ReadFull(r, data)
		if err != nil {
			return nil, fmt.Errorf("failed to read part %d: %w", i, err)
		}

		parts = append(parts, Part{Data: data, Object: head[4] == 1})
	}

	return parts, nil
}
