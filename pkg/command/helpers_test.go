package command

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/dukex/gridfn/pkg/models"
	"github.com/dukex/gridfn/pkg/wire"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCodec(t *testing.T) *wire.Codec {
	t.Helper()

	codec, err := NewCodec()
	require.NoError(t, err)

	return codec
}

// testFunction is a registrable function driven by a closure.
type testFunction struct {
	desc models.FunctionDescriptor
	run  func(ctx context.Context, fc *models.FunctionContext) error
}

func (f *testFunction) Descriptor() models.FunctionDescriptor {
	return f.desc
}

func (f *testFunction) Execute(ctx context.Context, fc *models.FunctionContext) error {
	if f.run == nil {
		return nil
	}

	return f.run(ctx, fc)
}

// fakeSession records what a call does to its connection.
type fakeSession struct {
	mu          sync.Mutex
	buf         bytes.Buffer
	version     wire.Version
	readTimeout int32
	timeouts    []int32
	localOnly   []bool
	responded   int
}

func newFakeSession(readTimeout int32) *fakeSession {
	return &fakeSession{version: wire.Current, readTimeout: readTimeout}
}

func (s *fakeSession) ID() string                  { return "conn-1" }
func (s *fakeSession) Principal() string           { return "client-a" }
func (s *fakeSession) ClientVersion() wire.Version { return s.version }
func (s *fakeSession) Writer() io.Writer           { return s }

func (s *fakeSession) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.buf.Write(p)
}

func (s *fakeSession) ReadTimeout() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readTimeout
}

func (s *fakeSession) SetReadTimeout(millis int32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.readTimeout = millis
	s.timeouts = append(s.timeouts, millis)
}

func (s *fakeSession) SetLocalOnly(localOnly bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.localOnly = append(s.localOnly, localOnly)
}

func (s *fakeSession) MarkResponded() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.responded++
}

func (s *fakeSession) frames(t *testing.T) []*wire.Frame {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	frames, err := wire.ReadAllFrames(bytes.NewReader(s.buf.Bytes()))
	require.NoError(t, err)

	return frames
}

// request describes an execute-region-function message to encode.
type request struct {
	version    wire.Version
	state      models.FunctionState
	timeout    int32
	noTimeout  bool
	region     string
	function   string
	args       any
	memberArgs *models.MemberMappedArgument
	flags      byte
	filter     []any
	excluded   []any
}

func (r request) message(t *testing.T, codec *wire.Codec) *wire.Message {
	t.Helper()

	version := r.version
	if version == 0 {
		version = wire.Current
	}

	state := []byte{byte(r.state)}
	if version >= wire.V8009 && !r.noTimeout {
		state = append(state, wire.EncodeInt(r.timeout)...)
	}

	args, err := wire.NewObjectPart(codec, r.args)
	require.NoError(t, err)

	memberArgs := wire.NewBytesPart(nil)
	if r.memberArgs != nil {
		memberArgs, err = wire.NewObjectPart(codec, r.memberArgs)
		require.NoError(t, err)
	}

	parts := []wire.Part{
		wire.NewBytesPart(state),
		wire.NewStringPart(r.region),
		wire.NewStringPart(r.function),
		args,
		memberArgs,
		wire.NewBytePart(r.flags),
	}

	parts = append(parts, setParts(t, codec, r.filter)...)
	parts = append(parts, setParts(t, codec, r.excluded)...)

	return &wire.Message{Type: wire.MessageExecuteRegionFunction, TransactionID: 11, Parts: parts}
}

func setParts(t *testing.T, codec *wire.Codec, values []any) []wire.Part {
	t.Helper()

	parts := []wire.Part{wire.NewIntPart(int32(len(values)))}

	for _, v := range values {
		if s, ok := v.(string); ok {
			parts = append(parts, wire.NewStringPart(s))

			continue
		}

		p, err := wire.NewObjectPart(codec, v)
		require.NoError(t, err)

		parts = append(parts, p)
	}

	return parts
}
