package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

type FrameKind byte

const (
	FrameMessage     FrameKind = 'M'
	FrameChunkHeader FrameKind = 'H'
	FrameChunk       FrameKind = 'C'
)

func (k FrameKind) String() string {
	switch k {
	case FrameMessage:
		return "message"
	case FrameChunkHeader:
		return "chunk-header"
	case FrameChunk:
		return "chunk"
	default:
		return fmt.Sprintf("FrameKind(%d)", byte(k))
	}
}

var (
	ErrHeaderNotSent   = errors.New("chunk header has not been sent")
	ErrHeaderSent      = errors.New("chunk header already sent")
	ErrUnexpectedFrame = errors.New("unexpected frame")
)

// ChunkedMessage is a streamed reply: one header followed by chunks, the
// final one flagged last. It is not safe for concurrent use; callers
// serialize access.
type ChunkedMessage struct {
	w             io.Writer
	messageType   MessageType
	transactionID int32
	headerSent    bool
	complete      bool
}

func NewChunkedMessage(w io.Writer, messageType MessageType) *ChunkedMessage {
	return &ChunkedMessage{w: w, messageType: messageType}
}

func (m *ChunkedMessage) SetMessageType(t MessageType) {
	m.messageType = t
}

func (m *ChunkedMessage) MessageType() MessageType {
	return m.messageType
}

func (m *ChunkedMessage) SetTransactionID(id int32) {
	m.transactionID = id
}

func (m *ChunkedMessage) HeaderSent() bool {
	return m.headerSent
}

// Complete reports whether the last chunk went out.
func (m *ChunkedMessage) Complete() bool {
	return m.complete
}

// Reset prepares the message for the next command on the connection.
func (m *ChunkedMessage) Reset(messageType MessageType) {
	m.messageType = messageType
	m.transactionID = 0
	m.headerSent = false
	m.complete = false
}

func (m *ChunkedMessage) SendHeader() error {
	if m.headerSent {
		return ErrHeaderSent
	}

	header := make([]byte, 9)
	header[0] = byte(FrameChunkHeader)
	binary.BigEndian.PutUint32(header[1:], uint32(m.messageType))
	binary.BigEndian.PutUint32(header[5:], uint32(m.transactionID))

	_, err := m.w.Write(header)
	if err != nil {
		return err
	}

	m.headerSent = true

	return nil
}

// SendChunk writes kind | numParts | last, followed by the parts.
func (m *ChunkedMessage) SendChunk(parts []Part, last bool) error {
	if !m.headerSent {
		return ErrHeaderNotSent
	}

	head := make([]byte, 6)
	head[0] = byte(FrameChunk)
	binary.BigEndian.PutUint32(head[1:], uint32(len(parts)))
	if last {
		head[5] = 1
	}

	_, err := m.w.Write(head)
	if err != nil {
		return err
	}

	_, err = writeParts(m.w, parts)
	if err != nil {
		return err
	}

	if last {
		m.complete = true
	}

	return nil
}

// Frame is any decoded unit on the wire.
type Frame struct {
	Kind          FrameKind
	Type          MessageType
	TransactionID int32
	Parts         []Part
	Last          bool
}

// Message converts a FrameMessage into a Message.
func (f *Frame) Message() *Message {
	return &Message{Type: f.Type, TransactionID: f.TransactionID, Parts: f.Parts}
}

// ReadFrame decodes the next frame of any kind.
func ReadFrame(r io.Reader) (*Frame, error) {
	kind := make([]byte, 1)

	_, err := io.ReadFull(r, kind)
	if err != nil {
		return nil, err
	}

	frame := &Frame{Kind: FrameKind(kind[0])}

	switch frame.Kind {
	case FrameMessage:
		head := make([]byte, 4)

		_, err = io.ReadFull(r, head)
		if err != nil {
			return nil, err
		}

		frame.Type = MessageType(int32(binary.BigEndian.Uint32(head)))

		n, err := readCount(r)
		if err != nil {
			return nil, err
		}

		_, err = io.ReadFull(r, head)
		if err != nil {
			return nil, err
		}

		frame.TransactionID = int32(binary.BigEndian.Uint32(head))

		frame.Parts, err = readParts(r, n)
		if err != nil {
			return nil, err
		}
	case FrameChunkHeader:
		head := make([]byte, 8)

		_, err = io.ReadFull(r, head)
		if err != nil {
			return nil, err
		}

		frame.Type = MessageType(int32(binary.BigEndian.Uint32(head[0:])))
		frame.TransactionID = int32(binary.BigEndian.Uint32(head[4:]))
	case FrameChunk:
		n, err := readCount(r)
		if err != nil {
			return nil, err
		}

		last := make([]byte, 1)

		_, err = io.ReadFull(r, last)
		if err != nil {
			return nil, err
		}

		frame.Last = last[0] == 1

		frame.Parts, err = readParts(r, n)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedFrame, frame.Kind)
	}

	return frame, nil
}

// ReadAllFrames decodes frames until r is exhausted.
func ReadAllFrames(r io.Reader) ([]*Frame, error) {
	var frames []*Frame

	for {
		f, err := ReadFrame(r)
		if errors.Is(err, io.EOF) {
			return frames, nil
		}

		if err != nil {
			return frames, err
		}

		frames = append(frames, f)
	}
}
