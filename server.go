package redisproto

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pior/redisproto/resp"
)

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("redisproto: server closed")

// maxInlineLength bounds a single inline command line.
const maxInlineLength = 64 * 1024

// ServerConfig configures a Server.
type ServerConfig struct {
	// Table routes commands to handlers. Required.
	Table *CommandTable

	// Logger receives accept errors, connection teardown causes and
	// recovered handler panics.
	// Optional: the zero value logs nothing.
	Logger zerolog.Logger

	// ReadBufferSize is the size of the per-connection read buffer.
	// Optional: 16 KiB by default.
	ReadBufferSize int
}

// Server serves the RESP protocol over a listener, one goroutine per
// connection. Commands are parsed, routed through the command table or
// the connection's session handler, and the handler's reply is written
// back. Commands already buffered behind the current one are served
// before the next socket read, so client pipelining works as expected.
type Server struct {
	config ServerConfig

	baseCtx context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[net.Conn]struct{}
}

// NewServer creates a server. The table must not be nil.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Table == nil {
		return nil, errors.New("redisproto: server requires a command table")
	}
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = defaultReadBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		config:    config,
		baseCtx:   ctx,
		cancel:    cancel,
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Serve accepts connections on l until Close is called or the listener
// fails. It always returns a non-nil error, ErrServerClosed after
// Close.
func (s *Server) Serve(l net.Listener) error {
	s.trackListener(l, true)
	defer s.trackListener(l, false)

	for {
		netConn, err := l.Accept()
		if err != nil {
			if s.baseCtx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}
			s.config.Logger.Error().Err(err).Msg("accept failed")
			return err
		}

		s.trackConn(netConn, true)
		go func() {
			defer s.trackConn(netConn, false)
			s.handleConn(netConn)
		}()
	}
}

// Close stops accepting, closes every open connection and cancels the
// context passed to handlers.
func (s *Server) Close() {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	for l := range s.listeners {
		l.Close()
	}
	for c := range s.conns {
		c.Close()
	}
}

func (s *Server) trackListener(l net.Listener, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.listeners[l] = struct{}{}
	} else {
		delete(s.listeners, l)
	}
}

func (s *Server) trackConn(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}

func (s *Server) handleConn(netConn net.Conn) {
	connCtx := NewConnContext(netConn.RemoteAddr().String())
	logger := s.config.Logger.With().Str("remote", connCtx.RemoteAddr()).Logger()

	defer func() {
		if err := connCtx.Close(); err != nil {
			logger.Debug().Err(err).Msg("session close failed")
		}
		netConn.Close()
	}()

	var (
		reader  commandReader
		wire    resp.Buffer
		scratch = make([]byte, s.config.ReadBufferSize)
	)

	for {
		args, ok, err := reader.next()
		if err != nil {
			// Tell the client why before tearing down, best effort.
			var out resp.Reply
			out.SetError(fmt.Sprintf("ERR Protocol error: %v", err))
			out.SerializeTo(&wire)
			netConn.Write(wire.Bytes())

			logger.Debug().Err(err).Msg("closing connection")
			return
		}

		if ok {
			if len(args) > 0 {
				s.serveCommand(connCtx, args, &wire)
				reader.release()

				if _, err := netConn.Write(wire.Bytes()); err != nil {
					logger.Debug().Err(err).Msg("write failed")
					return
				}
				wire.Reset()
			} else {
				// Blank inline line or empty array: nothing to run.
				reader.release()
			}
			continue
		}

		n, err := netConn.Read(scratch)
		if n > 0 {
			reader.feed(scratch[:n])
		}
		if err != nil {
			if err != io.EOF {
				logger.Debug().Err(err).Msg("read failed")
			}
			return
		}
	}
}

// serveCommand runs one command and serializes its reply into wire.
func (s *Server) serveCommand(connCtx *ConnContext, args [][]byte, wire *resp.Buffer) {
	var out resp.Reply
	s.executeHandler(connCtx, args, &out)
	out.SerializeTo(wire)
}

func (s *Server) executeHandler(connCtx *ConnContext, args [][]byte, out *resp.Reply) {
	name := string(args[0])

	defer func() {
		if v := recover(); v != nil {
			s.config.Logger.Error().Str("command", name).Interface("panic", v).Msg("handler panicked")
			out.SetError("ERR internal error")
		}
	}()

	handler, found := connCtx.SessionHandler()
	if !found {
		handler, found = s.config.Table.Lookup(name)
	}
	if !found {
		out.SetError(fmt.Sprintf("ERR unknown command '%s'", name))
		return
	}

	if err := handler.Execute(s.baseCtx, connCtx, args, out); err != nil {
		s.config.Logger.Debug().Str("command", name).Err(err).Msg("command failed")
		out.SetError("ERR " + err.Error())
	}
}

// commandReader cuts commands out of the byte stream of one connection.
// Multi-bulk commands are parsed with a Response, inline lines with
// SplitCommand.
type commandReader struct {
	buf resp.Buffer
	rsp resp.Response

	// multibulk is set while a multi-bulk parse is suspended waiting
	// for bytes, because the next buffered byte is then mid-command,
	// not a type marker.
	multibulk bool
}

func (cr *commandReader) feed(p []byte) {
	cr.buf.Write(p)
}

// next cuts one command. It returns the command tokens, whether a
// complete command was available, and any fatal protocol error. The
// tokens alias the reader's parse arena: the caller must call release
// after using them, and not before.
func (cr *commandReader) next() ([][]byte, bool, error) {
	if cr.buf.IsEmpty() {
		return nil, false, nil
	}

	if !cr.multibulk {
		head, _ := cr.buf.Peek(1)
		if head[0] != resp.MarkerArray {
			return cr.nextInline()
		}
		cr.multibulk = true
	}

	complete, err := cr.rsp.Consume(&cr.buf, 1)
	if err != nil {
		return nil, false, err
	}
	if !complete {
		return nil, false, nil
	}

	args, err := commandArgs(cr.rsp.Reply(0))
	if err != nil {
		return nil, false, err
	}
	return args, true, nil
}

// release recycles the parse arena, invalidating the tokens returned by
// the last next.
func (cr *commandReader) release() {
	cr.rsp.Reset()
	cr.multibulk = false
}

func (cr *commandReader) nextInline() ([][]byte, bool, error) {
	line, found := cr.buf.CutUntil([]byte{'\n'})
	if !found {
		if cr.buf.Len() > maxInlineLength {
			return nil, false, errors.New("too big inline request")
		}
		return nil, false, nil
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	// Blank lines are skipped, not errors.
	if len(bytes.TrimSpace(line)) == 0 {
		return nil, true, nil
	}

	args, err := resp.SplitCommand(string(line))
	if err != nil {
		return nil, false, err
	}
	return args, true, nil
}

// commandArgs flattens a parsed command into its tokens. Commands must
// be arrays of bulk strings. A nil or empty array yields no tokens,
// which the caller skips.
func commandArgs(reply *resp.Reply) ([][]byte, error) {
	if !reply.IsArray() {
		if reply.IsNil() {
			return nil, nil
		}
		return nil, fmt.Errorf("expected array, got %s", reply.Type())
	}

	n := reply.Len()
	if n == 0 {
		return nil, nil
	}

	args := make([][]byte, n)
	for i := 0; i < n; i++ {
		elem := reply.Element(i)
		if !elem.IsString() {
			return nil, fmt.Errorf("expected bulk string in command, got %s", elem.Type())
		}
		args[i] = elem.Bytes()
	}
	return args, nil
}
