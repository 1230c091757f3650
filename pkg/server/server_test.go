package server

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/dukex/gridfn/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T, cfg Config, setup func(*Server)) *Server {
	t.Helper()

	srv, err := New(cfg, discardLogger())
	require.NoError(t, err)

	if setup != nil {
		setup(srv)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)

	go func() {
		served <- srv.Serve(context.Background(), listener)
	}()

	t.Cleanup(func() {
		require.NoError(t, srv.Shutdown(context.Background()))
		require.ErrorIs(t, <-served, ErrServerClosed)
	})

	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, 5*time.Millisecond)

	return srv
}

func testConfig() Config {
	return Config{Addr: "127.0.0.1:40404", MemberID: "m1", ShutdownTimeout: time.Second}
}

type client struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, srv *Server, version wire.Version) *client {
	t.Helper()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)

	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(version))

	_, err = conn.Write(b)
	require.NoError(t, err)

	return &client{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *client) acknowledge(t *testing.T) wire.Version {
	t.Helper()

	b := make([]byte, 2)

	_, err := io.ReadFull(c.reader, b)
	require.NoError(t, err)

	return wire.Version(int16(binary.BigEndian.Uint16(b)))
}

func (c *client) roundTrip(t *testing.T, msg *wire.Message) *wire.Message {
	t.Helper()

	_, err := msg.WriteTo(c.conn)
	require.NoError(t, err)

	reply, err := wire.ReadMessage(c.reader)
	require.NoError(t, err)

	return reply
}

func TestServer_HandshakeAndPing(t *testing.T) {
	t.Parallel()

	srv := startServer(t, testConfig(), nil)

	c := dial(t, srv, wire.V82)
	assert.Equal(t, wire.Current, c.acknowledge(t))

	reply := c.roundTrip(t, &wire.Message{Type: wire.MessagePing, TransactionID: 3})
	assert.Equal(t, wire.MessageReply, reply.Type)
	assert.Equal(t, int32(3), reply.TransactionID)

	require.Eventually(t, func() bool { return srv.Stats().Processed == 1 }, time.Second, 5*time.Millisecond)

	conns := srv.Connections()
	require.Len(t, conns, 1)
	assert.Equal(t, "8.2", conns[0].ClientVersion)
	assert.Equal(t, int64(1), conns[0].Processed)

	stats := srv.Stats()
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, int64(1), stats.Accepted)
}

func TestServer_UnsupportedVersion(t *testing.T) {
	t.Parallel()

	srv := startServer(t, testConfig(), nil)

	c := dial(t, srv, wire.Version(7))

	_, err := c.reader.ReadByte()
	require.ErrorIs(t, err, io.EOF)
}

func TestServer_UnknownMessageType(t *testing.T) {
	t.Parallel()

	srv := startServer(t, testConfig(), nil)

	c := dial(t, srv, wire.Current)
	c.acknowledge(t)

	reply := c.roundTrip(t, &wire.Message{Type: wire.MessageType(77), TransactionID: 9})
	assert.Equal(t, wire.MessageRequestDataError, reply.Type)
	assert.Equal(t, int32(9), reply.TransactionID)
	assert.Contains(t, reply.Parts[0].String(), "MessageType(77)")
}

func TestServer_CommandSeesSession(t *testing.T) {
	t.Parallel()

	seen := make(chan wire.Version, 1)

	srv := startServer(t, testConfig(), func(s *Server) {
		s.Handle(wire.MessageExecuteRegionFunction, CommandFunc(func(_ context.Context, msg *wire.Message, conn *Connection) {
			seen <- conn.ClientVersion()

			conn.SetReadTimeout(50)
			conn.SetLocalOnly(true)

			reply := &wire.Message{Type: wire.MessageReply, TransactionID: msg.TransactionID}

			_, err := reply.WriteTo(conn.Writer())
			if err == nil {
				conn.MarkResponded()
			}
		}))
	})

	c := dial(t, srv, wire.V81)
	c.acknowledge(t)

	reply := c.roundTrip(t, &wire.Message{Type: wire.MessageExecuteRegionFunction, TransactionID: 1})
	assert.Equal(t, wire.MessageReply, reply.Type)
	assert.Equal(t, wire.V81, <-seen)
}

func TestServer_KeepsServingAfterSilentCommand(t *testing.T) {
	t.Parallel()

	srv := startServer(t, testConfig(), func(s *Server) {
		s.Handle(wire.MessageExecuteRegionFunction, CommandFunc(func(context.Context, *wire.Message, *Connection) {}))
	})

	c := dial(t, srv, wire.Current)
	c.acknowledge(t)

	_, err := (&wire.Message{Type: wire.MessageExecuteRegionFunction, TransactionID: 1}).WriteTo(c.conn)
	require.NoError(t, err)

	reply := c.roundTrip(t, &wire.Message{Type: wire.MessagePing, TransactionID: 2})
	assert.Equal(t, int32(2), reply.TransactionID)
	require.Eventually(t, func() bool { return srv.Stats().Processed == 2 }, time.Second, 5*time.Millisecond)
}

func TestServer_MaxConnections(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxConnections = 1

	srv := startServer(t, cfg, nil)

	first := dial(t, srv, wire.Current)
	first.acknowledge(t)

	second := dial(t, srv, wire.Current)

	_, err := second.reader.ReadByte()
	require.Error(t, err)

	reply := first.roundTrip(t, &wire.Message{Type: wire.MessagePing, TransactionID: 1})
	assert.Equal(t, wire.MessageReply, reply.Type)
}

func TestServer_AdmitEnforcesLimitAndShutdown(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxConnections = 2

	srv, err := New(cfg, discardLogger())
	require.NoError(t, err)

	pipe := func() *Connection {
		local, remote := net.Pipe()
		t.Cleanup(func() {
			_ = local.Close()
			_ = remote.Close()
		})

		return newConnection(local, 0)
	}

	first, second := pipe(), pipe()
	require.NoError(t, srv.admit(first))
	require.NoError(t, srv.admit(second))
	require.ErrorIs(t, srv.admit(pipe()), ErrTooManyConnections)
	assert.Equal(t, Stats{Active: 2, Accepted: 2}, srv.Stats())

	srv.untrack(first)
	srv.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, srv.Shutdown(ctx))
	require.ErrorIs(t, srv.admit(pipe()), ErrServerClosed)
	assert.Equal(t, int64(2), srv.Stats().Accepted)

	srv.untrack(second)
	srv.wg.Done()
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Config{Addr: ":40404", MemberID: "m1"}.Validate())
	require.Error(t, Config{Addr: "nohost", MemberID: "m1"}.Validate())
	require.Error(t, Config{Addr: ":40404"}.Validate())
	require.Error(t, Config{Addr: ":40404", MemberID: "m1", MaxConnections: -1}.Validate())

	_, err := New(Config{}, discardLogger())
	require.Error(t, err)
}

func TestServer_ServeAfterShutdown(t *testing.T) {
	t.Parallel()

	srv, err := New(testConfig(), discardLogger())
	require.NoError(t, err)
	require.NoError(t, srv.Shutdown(context.Background()))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	defer listener.Close()

	require.ErrorIs(t, srv.Serve(context.Background(), listener), ErrServerClosed)
}
