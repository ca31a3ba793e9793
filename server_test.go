package redisproto

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/redisproto/resp"
)

// dialServer opens a raw client connection to a test server, with a
// deadline so a misbehaving test cannot hang.
func dialServer(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return conn, bufio.NewReader(conn)
}

func writeWire(t *testing.T, conn net.Conn, wire string) {
	t.Helper()
	_, err := conn.Write([]byte(wire))
	require.NoError(t, err)
}

// expectWire reads exactly len(want) bytes and compares them.
func expectWire(t *testing.T, r *bufio.Reader, want string) {
	t.Helper()
	got := make([]byte, len(want))
	_, err := io.ReadFull(r, got)
	require.NoError(t, err)
	require.Equal(t, want, string(got))
}

func TestNewServerRequiresTable(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	require.Error(t, err)
}

func TestServerMultiBulkCommand(t *testing.T) {
	addr := startTestServer(t, testStoreTable(t))
	conn, r := dialServer(t, addr)

	writeWire(t, conn, "*2\r\n$4\r\nECHO\r\n$5\r\nhello\r\n")
	expectWire(t, r, "$5\r\nhello\r\n")
}

func TestServerInlineCommand(t *testing.T) {
	addr := startTestServer(t, testStoreTable(t))
	conn, r := dialServer(t, addr)

	writeWire(t, conn, "PING\r\n")
	expectWire(t, r, "+PONG\r\n")

	// Quoted tokens follow the inline grammar.
	writeWire(t, conn, "ECHO \"hello world\"\r\n")
	expectWire(t, r, "$11\r\nhello world\r\n")
}

func TestServerSkipsEmptyCommands(t *testing.T) {
	addr := startTestServer(t, testStoreTable(t))
	conn, r := dialServer(t, addr)

	// A blank inline line, an empty array and a nil array produce no
	// reply; the PING behind them is served.
	writeWire(t, conn, "\r\n*0\r\n*-1\r\nPING\r\n")
	expectWire(t, r, "+PONG\r\n")
}

func TestServerPipelinedCommands(t *testing.T) {
	addr := startTestServer(t, testStoreTable(t))
	conn, r := dialServer(t, addr)

	// One write, several commands, multi-bulk and inline mixed.
	writeWire(t, conn, "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n*2\r\n$3\r\nGET\r\n$1\r\nk\r\nPING\r\n")
	expectWire(t, r, "+OK\r\n$1\r\nv\r\n+PONG\r\n")
}

func TestServerUnknownCommand(t *testing.T) {
	addr := startTestServer(t, testStoreTable(t))
	conn, r := dialServer(t, addr)

	writeWire(t, conn, "*1\r\n$7\r\nNOSUCHX\r\n")
	expectWire(t, r, "-ERR unknown command 'NOSUCHX'\r\n")

	// An unknown command is an error reply, not a teardown.
	writeWire(t, conn, "PING\r\n")
	expectWire(t, r, "+PONG\r\n")
}

func TestServerHandlerError(t *testing.T) {
	addr := startTestServer(t, testStoreTable(t))
	conn, r := dialServer(t, addr)

	writeWire(t, conn, "*1\r\n$3\r\nGET\r\n")
	expectWire(t, r, "-ERR wrong number of arguments for 'get' command\r\n")
}

func TestServerProtocolErrorClosesConnection(t *testing.T) {
	for name, wire := range map[string]string{
		"BadArrayLength": "*abc\r\n",
		"NonBulkElement": "*1\r\n:5\r\n",
	} {
		t.Run(name, func(t *testing.T) {
			addr := startTestServer(t, testStoreTable(t))
			conn, r := dialServer(t, addr)

			writeWire(t, conn, wire)

			line, err := r.ReadString('\n')
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(line, "-ERR Protocol error:"), "unexpected reply: %q", line)

			// The connection is gone after the error reply.
			_, err = r.ReadByte()
			require.Error(t, err)
		})
	}
}

func TestServerHandlerPanicRecovered(t *testing.T) {
	table := testStoreTable(t)
	table.MustRegister("BOOM", HandlerFunc(func(ctx context.Context, conn *ConnContext, args [][]byte, out *resp.Reply) error {
		panic("kaboom")
	}))

	addr := startTestServer(t, table)
	conn, r := dialServer(t, addr)

	writeWire(t, conn, "BOOM\r\n")
	expectWire(t, r, "-ERR internal error\r\n")

	// The connection survives the panic.
	writeWire(t, conn, "PING\r\n")
	expectWire(t, r, "+PONG\r\n")
}

func TestServerClose(t *testing.T) {
	server, err := NewServer(ServerConfig{Table: testStoreTable(t)})
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(listener) }()

	conn, r := dialServer(t, listener.Addr().String())
	writeWire(t, conn, "PING\r\n")
	expectWire(t, r, "+PONG\r\n")

	server.Close()

	require.ErrorIs(t, <-serveErr, ErrServerClosed)

	// Open connections are torn down with the server.
	_, err = r.ReadByte()
	require.Error(t, err)
}

func TestCommandReaderResumesAcrossFeeds(t *testing.T) {
	var reader commandReader

	wire := "*2\r\n$4\r\nECHO\r\n$5\r\nhello\r\n"

	// Feed the command one byte at a time: next reports incomplete
	// until the last byte arrives.
	for i := 0; i < len(wire)-1; i++ {
		reader.feed([]byte{wire[i]})
		args, ok, err := reader.next()
		require.NoError(t, err)
		require.False(t, ok, "command complete after %d bytes", i+1)
		require.Nil(t, args)
	}

	reader.feed([]byte{wire[len(wire)-1]})
	args, ok, err := reader.next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, [][]byte{[]byte("ECHO"), []byte("hello")}, args)
	reader.release()
}

func TestCommandReaderInlineThenMultiBulk(t *testing.T) {
	var reader commandReader
	reader.feed([]byte("PING\r\n*1\r\n$4\r\nPING\r\n"))

	args, ok, err := reader.next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, [][]byte{[]byte("PING")}, args)
	reader.release()

	args, ok, err = reader.next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, [][]byte{[]byte("PING")}, args)
	reader.release()

	_, ok, err = reader.next()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCommandReaderOversizedInline(t *testing.T) {
	var reader commandReader
	reader.feed([]byte(strings.Repeat("x", maxInlineLength+1)))

	_, _, err := reader.next()
	require.Error(t, err)
}
