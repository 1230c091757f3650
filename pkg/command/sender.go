package command

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dukex/gridfn/pkg/models"
	"github.com/dukex/gridfn/pkg/wire"
)

var ErrResponseComplete = errors.New("response already complete")

var okBytes = []byte{0x1}

// ResultSender owns the response of one call. Whichever path reaches a
// terminal send first wins; later terminal attempts are no-ops. Every send
// holds the sender lock, so a failure path never interleaves with a send
// that is still writing.
type ResultSender struct {
	mu         sync.Mutex
	out        io.Writer
	codec      *wire.Codec
	txID       int32
	hasResult  bool
	response   *wire.ChunkedMessage
	done       bool
	retried    bool
	chunks     int
	onTerminal func()
}

// NewResultSender writes to out. onTerminal runs once, when the call
// commits to its terminal response.
func NewResultSender(out io.Writer, codec *wire.Codec, txID int32, onTerminal func()) *ResultSender {
	response := wire.NewChunkedMessage(out, wire.MessageExecuteRegionFunctionResult)
	response.SetTransactionID(txID)

	return &ResultSender{
		out:        out,
		codec:      codec,
		txID:       txID,
		response:   response,
		onTerminal: onTerminal,
	}
}

// SetHasResult selects chunked (true) or unary (false) replies.
func (s *ResultSender) SetHasResult(hasResult bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hasResult = hasResult
}

// Terminated reports whether the terminal response was committed.
func (s *ResultSender) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.done
}

// Chunks counts data chunks sent so far.
func (s *ResultSender) Chunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.chunks
}

// SendResult implements models.ResultSender.
func (s *ResultSender) SendResult(v any) error {
	return s.SendData(v)
}

// LastResult implements models.ResultSender.
func (s *ResultSender) LastResult(v any) error {
	_, err := s.SendLastResult(v)

	return err
}

// SendData streams one non-terminal result chunk.
func (s *ResultSender) SendData(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return ErrResponseComplete
	}

	part, err := wire.NewObjectPart(s.codec, v)
	if err != nil {
		return fmt.Errorf("failed to serialize result: %w", err)
	}

	err = s.ensureHeader()
	if err != nil {
		return err
	}

	err = s.response.SendChunk([]wire.Part{part}, false)
	if err != nil {
		return &models.TransportError{Op: "send result chunk", Err: err}
	}

	s.chunks++

	return nil
}

// SendLastSuccess closes the stream with an empty final chunk.
func (s *ResultSender) SendLastSuccess() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.claim() {
		return false, nil
	}

	return true, s.sendLast(nil)
}

// SendLastResult sends v as the final chunk.
func (s *ResultSender) SendLastResult(v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.claim() {
		return false, nil
	}

	part, err := wire.NewObjectPart(s.codec, v)
	if err != nil {
		return true, fmt.Errorf("failed to serialize last result: %w", err)
	}

	err = s.sendLast([]wire.Part{part})
	if err == nil {
		s.chunks++
	}

	return true, err
}

func (s *ResultSender) sendLast(parts []wire.Part) error {
	err := s.ensureHeader()
	if err != nil {
		return err
	}

	err = s.response.SendChunk(parts, true)
	if err != nil {
		return &models.TransportError{Op: "send last result", Err: err}
	}

	return nil
}

// SendReply acknowledges a call that returns no result.
func (s *ResultSender) SendReply() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.claim() {
		return false, nil
	}

	return true, s.writeMessage(wire.MessageReply, []wire.Part{wire.NewBytesPart(okBytes)})
}

// SendException reports a failure: as an exception chunk when the client
// expects results, otherwise as a unary exception. A stream that already
// started gets the exception as its trailing chunk.
func (s *ResultSender) SendException(env models.FailureEnvelope) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.claim() {
		return false, nil
	}

	return true, s.writeException(env)
}

// SendUnaryException always answers with a unary exception message.
func (s *ResultSender) SendUnaryException(message string, cause error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.claim() {
		return false, nil
	}

	switch {
	case cause == nil:
		cause = errors.New(message)
	case message != "" && message != cause.Error():
		cause = fmt.Errorf("%s: %w", message, cause)
	}

	return true, s.writeUnaryException(models.NewFailureEnvelope(models.FailureGeneric, cause))
}

// SendError reports a validation failure detected before dispatch.
func (s *ResultSender) SendError(message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.claim() {
		return false, nil
	}

	parts := []wire.Part{wire.NewStringPart(message)}

	if !s.hasResult {
		return true, s.writeMessage(wire.MessageExecuteRegionFunctionError, parts)
	}

	if !s.response.HeaderSent() {
		s.response.SetMessageType(wire.MessageExecuteRegionFunctionError)
	}

	err := s.ensureHeader()
	if err != nil {
		return true, err
	}

	err = s.response.SendChunk(parts, true)
	if err != nil {
		return true, &models.TransportError{Op: "send error chunk", Err: err}
	}

	return true, nil
}

// SendTransportFailure is the one last attempt after a write failed. It
// ignores the terminal gate, since the committed response may never have
// reached the client, and it only ever runs once.
func (s *ResultSender) SendTransportFailure(env models.FailureEnvelope) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retried {
		return false, nil
	}

	s.retried = true
	s.claim()

	return true, s.writeException(env)
}

// claim closes the terminal gate; it reports whether this caller closed it.
func (s *ResultSender) claim() bool {
	if s.done {
		return false
	}

	s.done = true

	if s.onTerminal != nil {
		s.onTerminal()
	}

	return true
}

func (s *ResultSender) ensureHeader() error {
	if s.response.HeaderSent() {
		return nil
	}

	err := s.response.SendHeader()
	if err != nil {
		return &models.TransportError{Op: "send chunk header", Err: err}
	}

	return nil
}

func (s *ResultSender) writeException(env models.FailureEnvelope) error {
	if !s.hasResult {
		return s.writeUnaryException(env)
	}

	parts, err := s.exceptionParts(env, true)
	if err != nil {
		return err
	}

	if !s.response.HeaderSent() {
		s.response.SetMessageType(wire.MessageException)
	}

	err = s.ensureHeader()
	if err != nil {
		return err
	}

	err = s.response.SendChunk(parts, true)
	if err != nil {
		return &models.TransportError{Op: "send exception chunk", Err: err}
	}

	return nil
}

func (s *ResultSender) writeUnaryException(env models.FailureEnvelope) error {
	parts, err := s.exceptionParts(env, false)
	if err != nil {
		return err
	}

	return s.writeMessage(wire.MessageException, parts)
}

// exceptionParts is exception, trace and, when known and wanted, the failed
// member set.
func (s *ResultSender) exceptionParts(env models.FailureEnvelope, withFailedMembers bool) ([]wire.Part, error) {
	exception, err := wire.NewObjectPart(s.codec, env.Exception)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize exception: %w", err)
	}

	parts := []wire.Part{exception, wire.NewStringPart(env.StackTrace)}

	if withFailedMembers && env.HasFailedMembers() {
		failed, err := wire.NewObjectPart(s.codec, env.FailedMembers)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize failed member set: %w", err)
		}

		parts = append(parts, failed)
	}

	return parts, nil
}

func (s *ResultSender) writeMessage(t wire.MessageType, parts []wire.Part) error {
	msg := &wire.Message{Type: t, TransactionID: s.txID, Parts: parts}

	_, err := msg.WriteTo(s.out)
	if err != nil {
		return &models.TransportError{Op: "send " + t.String(), Err: err}
	}

	return nil
}

// discardResults swallows results of calls that do not return any.
type discardResults struct{}

func (discardResults) SendResult(any) error { return nil }
func (discardResults) LastResult(any) error { return nil }
