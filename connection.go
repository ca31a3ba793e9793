package redisproto

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/pior/redisproto/resp"
)

var (
	ErrConnectionClosed = errors.New("redisproto: connection closed")
	ErrEmptyRequest     = errors.New("redisproto: request has no commands")
)

// defaultReadBufferSize is the size of a single socket read while
// collecting replies.
const defaultReadBufferSize = 16 * 1024

// Connection is a single pipelined connection to a redis server.
// An Execute call owns the connection exclusively: the whole request
// batch is written as one buffer and the replies collected in order, so
// concurrent Execute calls serialize on the connection mutex.
type Connection struct {
	addr     string
	conn     net.Conn
	mu       sync.Mutex
	buf      resp.Buffer // unparsed reply bytes carried across reads
	scratch  []byte
	inFlight int
	lastUsed time.Time
	closed   bool
}

// NewConnection wraps an established network connection.
func NewConnection(netConn net.Conn) *Connection {
	return &Connection{
		addr:     netConn.RemoteAddr().String(),
		conn:     netConn,
		scratch:  make([]byte, defaultReadBufferSize),
		lastUsed: time.Now(),
	}
}

// Execute sends the request pipeline and collects one reply per
// appended command. A poisoned request is rejected before any byte is
// written. Transport failures and protocol violations close the
// connection; the caller decides whether to destroy the pooled resource
// (see resp.ShouldCloseConnection).
func (c *Connection) Execute(ctx context.Context, req *resp.Request) (*resp.Response, error) {
	if req.CommandCount() == 0 {
		if err := req.Err(); err != nil {
			return nil, err
		}
		return nil, ErrEmptyRequest
	}

	data, err := req.Serialize()
	if err != nil {
		return nil, err
	}

	// Check if context is already cancelled
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrConnectionClosed
	}

	// Set deadline based on context
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
	} else {
		c.conn.SetDeadline(time.Time{})
	}

	c.inFlight += req.CommandCount()
	defer func() { c.inFlight -= req.CommandCount() }()

	if _, err := c.conn.Write(data); err != nil {
		c.markClosed()
		return nil, err
	}

	rsp := &resp.Response{}
	for {
		complete, err := rsp.Consume(&c.buf, req.CommandCount())
		if err != nil {
			c.markClosed()
			return nil, err
		}
		if complete {
			break
		}

		n, err := c.conn.Read(c.scratch)
		if n > 0 {
			c.buf.Write(c.scratch[:n])
		}
		if err != nil {
			c.markClosed()
			return nil, err
		}
	}

	c.lastUsed = time.Now()
	return rsp, nil
}

// Ping sends a PING command to test if the connection is alive.
func (c *Connection) Ping(ctx context.Context) error {
	req := &resp.Request{}
	if err := req.Append("PING"); err != nil {
		return err
	}

	rsp, err := c.Execute(ctx, req)
	if err != nil {
		return err
	}
	if r := rsp.Reply(0); r.IsError() {
		return &ServerError{Message: r.ErrorMessage()}
	}
	return nil
}

// InFlight returns the number of commands currently in flight
func (c *Connection) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// LastUsed returns when the connection was last used
func (c *Connection) LastUsed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

// IsClosed returns whether the connection is closed
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Addr returns the connection address
func (c *Connection) Addr() string {
	return c.addr
}

// Close closes the connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	return c.conn.Close()
}

// markClosed closes the connection after a transport or protocol
// failure (must be called with lock held)
func (c *Connection) markClosed() {
	c.closed = true
	_ = c.conn.Close()
}
