package server

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/dukex/gridfn/pkg/wire"
	"github.com/google/uuid"
)

// Connection is the state of one client connection. Commands on a
// connection run one at a time; the mutex only guards against the admin
// API and the stats job reading it.
type Connection struct {
	id        string
	conn      net.Conn
	reader    *bufio.Reader
	version   wire.Version
	principal string
	opened    time.Time

	mu               sync.Mutex
	readTimeout      int32
	localOnly        bool
	requiresResponse bool
	responded        bool
	processed        int64
}

func newConnection(conn net.Conn, readTimeout time.Duration) *Connection {
	return &Connection{
		id:          uuid.NewString(),
		conn:        conn,
		reader:      bufio.NewReader(conn),
		version:     wire.Current,
		principal:   conn.RemoteAddr().String(),
		opened:      time.Now(),
		readTimeout: int32(readTimeout / time.Millisecond),
	}
}

// handshake reads the client protocol version, a big-endian int16, and
// answers with the server version.
func (c *Connection) handshake() error {
	b := make([]byte, 2)

	_, err := io.ReadFull(c.reader, b)
	if err != nil {
		return fmt.Errorf("failed to read client version: %w", err)
	}

	v := wire.Version(int16(binary.BigEndian.Uint16(b)))
	if v < wire.V80 || v > wire.Current {
		return fmt.Errorf("unsupported client version %d", v)
	}

	c.version = v

	binary.BigEndian.PutUint16(b, uint16(wire.Current))

	_, err = c.conn.Write(b)
	if err != nil {
		return fmt.Errorf("failed to acknowledge client version: %w", err)
	}

	return nil
}

func (c *Connection) ID() string                  { return c.id }
func (c *Connection) Principal() string           { return c.principal }
func (c *Connection) ClientVersion() wire.Version { return c.version }

// Writer applies the current read timeout as write deadline to each write.
func (c *Connection) Writer() io.Writer {
	return deadlineWriter{c}
}

func (c *Connection) ReadTimeout() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.readTimeout
}

func (c *Connection) SetReadTimeout(millis int32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.readTimeout = millis
}

func (c *Connection) LocalOnly() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.localOnly
}

func (c *Connection) SetLocalOnly(localOnly bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.localOnly = localOnly
}

func (c *Connection) MarkResponded() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.responded = true
}

func (c *Connection) Responded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.responded
}

// begin resets the per-command response flags.
func (c *Connection) begin() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requiresResponse = true
	c.responded = false
}

func (c *Connection) end() (missingResponse bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.processed++

	return c.requiresResponse && !c.responded
}

// Info is a snapshot for the admin API.
type Info struct {
	ID            string    `json:"id"`
	RemoteAddr    string    `json:"remote_addr"`
	ClientVersion string    `json:"client_version"`
	OpenedAt      time.Time `json:"opened_at"`
	Processed     int64     `json:"processed"`
}

func (c *Connection) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Info{
		ID:            c.id,
		RemoteAddr:    c.conn.RemoteAddr().String(),
		ClientVersion: c.version.String(),
		OpenedAt:      c.opened,
		Processed:     c.processed,
	}
}

func (c *Connection) readMessage() (*wire.Message, error) {
	timeout := c.ReadTimeout()
	if timeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(time.Duration(timeout) * time.Millisecond))
	} else {
		_ = c.conn.SetReadDeadline(time.Time{})
	}

	return wire.ReadMessage(c.reader)
}

func (c *Connection) Close() error {
	return c.conn.Close()
}

type deadlineWriter struct {
	c *Connection
}

func (w deadlineWriter) Write(p []byte) (int, error) {
	timeout := w.c.ReadTimeout()
	if timeout > 0 {
		_ = w.c.conn.SetWriteDeadline(time.Now().Add(time.Duration(timeout) * time.Millisecond))
	} else {
		_ = w.c.conn.SetWriteDeadline(time.Time{})
	}

	return w.c.conn.Write(p)
}
