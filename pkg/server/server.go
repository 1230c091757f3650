// Package server accepts client connections and dispatches their messages
// to commands. Each connection is served by its own goroutine and its
// messages are processed in order.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dukex/gridfn/pkg/wire"
)

var (
	ErrServerClosed       = errors.New("server closed")
	ErrTooManyConnections = errors.New("too many connections")
)

// Command handles one message type. A command answers the client itself;
// it never returns an error to the server.
type Command interface {
	Execute(ctx context.Context, msg *wire.Message, conn *Connection)
}

// CommandFunc adapts a function to Command.
type CommandFunc func(ctx context.Context, msg *wire.Message, conn *Connection)

func (f CommandFunc) Execute(ctx context.Context, msg *wire.Message, conn *Connection) {
	f(ctx, msg, conn)
}

// Stats is a point in time view of the server.
type Stats struct {
	Active    int   `json:"active"`
	Accepted  int64 `json:"accepted"`
	Processed int64 `json:"processed"`
}

type Server struct {
	cfg      Config
	logger   *slog.Logger
	commands map[wire.MessageType]Command

	mu       sync.Mutex
	listener net.Listener
	conns    map[string]*Connection
	closed   bool
	wg       sync.WaitGroup

	accepted  atomic.Int64
	processed atomic.Int64
}

func New(cfg Config, logger *slog.Logger) (*Server, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger.With("module", "server", "member", cfg.MemberID),
		commands: make(map[wire.MessageType]Command),
		conns:    make(map[string]*Connection),
	}

	s.Handle(wire.MessagePing, CommandFunc(ping))

	return s, nil
}

// Handle routes messages of type t to cmd, replacing any previous route.
func (s *Server) Handle(t wire.MessageType, cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commands[t] = cmd
}

// ListenAndServe blocks until ctx is done or Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig

	listener, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}

	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is done or Shutdown is
// called.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return ErrServerClosed
	}

	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("Server listening", "address", listener.Addr().String())

	stop := context.AfterFunc(ctx, func() {
		_ = s.Shutdown(context.Background())
	})
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			return fmt.Errorf("failed to accept connection: %w", err)
		}

		c := newConnection(conn, s.cfg.ReadTimeout)

		err = s.admit(c)
		if err != nil {
			_ = conn.Close()

			if errors.Is(err, ErrServerClosed) {
				return ErrServerClosed
			}

			s.logger.Warn("Rejecting connection", "remote", c.Principal(), "error", err)

			continue
		}

		go s.serveConn(ctx, c)
	}
}

// admit registers conn unless the server is closed or full. Shutdown waits
// for every admitted connection.
func (s *Server) admit(conn *Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}

	if s.cfg.MaxConnections > 0 && len(s.conns) >= s.cfg.MaxConnections {
		return ErrTooManyConnections
	}

	s.conns[conn.ID()] = conn
	s.accepted.Add(1)
	s.wg.Add(1)

	return nil
}

// Addr is nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

func (s *Server) serveConn(ctx context.Context, conn *Connection) {
	defer s.wg.Done()

	logger := s.logger.With("connection", conn.ID())

	defer func() {
		s.untrack(conn)

		err := conn.Close()
		if err != nil && !isClosedConnError(err) {
			logger.Debug("Failed to close connection", "error", err)
		}
	}()

	err := conn.handshake()
	if err != nil {
		logger.Warn("Handshake failed", "remote", conn.Principal(), "error", err)

		return
	}

	logger.Debug("Client connected", "remote", conn.Principal(), "version", conn.ClientVersion().String())

	for {
		msg, err := conn.readMessage()
		if err != nil {
			if errors.Is(err, io.EOF) || isClosedConnError(err) {
				logger.Debug("Client disconnected")
			} else {
				logger.Warn("Failed to read message", "error", err)
			}

			return
		}

		s.dispatch(ctx, logger, msg, conn)
	}
}

func (s *Server) dispatch(ctx context.Context, logger *slog.Logger, msg *wire.Message, conn *Connection) {
	s.mu.Lock()
	cmd, ok := s.commands[msg.Type]
	s.mu.Unlock()

	conn.begin()

	if !ok {
		logger.Warn("No command for message type", "type", msg.Type.String())

		reply := &wire.Message{
			Type:          wire.MessageRequestDataError,
			TransactionID: msg.TransactionID,
			Parts:         []wire.Part{wire.NewStringPart("unknown message type " + msg.Type.String())},
		}

		_, err := reply.WriteTo(conn.Writer())
		if err == nil {
			conn.MarkResponded()
		}
	} else {
		cmd.Execute(ctx, msg, conn)
	}

	missing := conn.end()
	s.processed.Add(1)

	if missing {
		logger.Warn("Command finished without answering the client", "type", msg.Type.String())
	}
}

func ping(_ context.Context, msg *wire.Message, conn *Connection) {
	reply := &wire.Message{
		Type:          wire.MessageReply,
		TransactionID: msg.TransactionID,
		Parts:         []wire.Part{wire.NewBytesPart([]byte{0x1})},
	}

	_, err := reply.WriteTo(conn.Writer())
	if err == nil {
		conn.MarkResponded()
	}
}

func (s *Server) untrack(conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conns, conn.ID())
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

func (s *Server) Stats() Stats {
	s.mu.Lock()
	active := len(s.conns)
	s.mu.Unlock()

	return Stats{
		Active:    active,
		Accepted:  s.accepted.Load(),
		Processed: s.processed.Load(),
	}
}

// Connections lists the open connections, oldest first.
func (s *Server) Connections() []Info {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	infos := make([]Info, 0, len(conns))
	for _, c := range conns {
		infos = append(infos, c.Info())
	}

	slices.SortFunc(infos, func(a, b Info) int {
		return a.OpenedAt.Compare(b.OpenedAt)
	})

	return infos
}

// Shutdown stops accepting, closes every connection and waits for their
// goroutines until ctx or the configured shutdown timeout expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return nil
	}

	s.closed = true

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}

	for _, c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}

	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Server stopped")
	case <-ctx.Done():
		s.logger.Warn("Server stopped before every connection finished", "error", ctx.Err())
	}

	if err != nil && !isClosedConnError(err) {
		return fmt.Errorf("failed to close listener: %w", err)
	}

	return nil
}

func isClosedConnError(err error) bool {
	return errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection")
}
