package redisproto

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pior/redisproto/resp"
)

func createListener(t testing.TB, handler func(conn net.Conn)) string {
	// Start a simple test server
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start test server: %v", err)
	}

	t.Cleanup(func() {
		listener.Close()
	})

	// Accept connections in background
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}

			go func(c net.Conn) {
				defer c.Close()

				if handler != nil {
					handler(c)
				}
			}(conn)
		}
	}()

	// Give the server time to start
	time.Sleep(10 * time.Millisecond)

	return listener.Addr().String()
}

// cannedResponder answers each read with the next reply, verbatim.
// One read covers one request pipeline, so a reply string must hold
// every reply of its pipeline.
func cannedResponder(replies ...string) func(conn net.Conn) {
	return func(conn net.Conn) {
		buf := make([]byte, 4096)
		for _, reply := range replies {
			if _, err := conn.Read(buf); err != nil {
				return
			}
			if _, err := conn.Write([]byte(reply)); err != nil {
				return
			}
		}
	}
}

// pongResponder answers every request with +PONG, like a server that
// only knows PING.
func pongResponder(conn net.Conn) {
	buf := make([]byte, 4096)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
		if _, err := conn.Write([]byte("+PONG\r\n")); err != nil {
			return
		}
	}
}

// shortDialer dials with a timeout suited to tests against dead ports.
func shortDialer() *net.Dialer {
	return &net.Dialer{Timeout: 200 * time.Millisecond}
}

// startTestServer serves the table on a local listener and returns its
// address. The server is shut down with the test.
func startTestServer(t testing.TB, table *CommandTable) string {
	t.Helper()

	server, err := NewServer(ServerConfig{Table: table})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start test server: %v", err)
	}

	go server.Serve(listener)

	t.Cleanup(server.Close)

	return listener.Addr().String()
}

// testStoreTable builds a command table over a small in-memory store,
// enough for end to end tests: PING, ECHO, GET, SET (with NX), DEL,
// INCRBY.
func testStoreTable(t testing.TB) *CommandTable {
	t.Helper()

	store := &testStore{entries: make(map[string]string)}

	table := NewCommandTable()
	table.MustRegister("PING", HandlerFunc(func(ctx context.Context, conn *ConnContext, args [][]byte, out *resp.Reply) error {
		out.SetStatus("PONG")
		return nil
	}))
	table.MustRegister("ECHO", HandlerFunc(func(ctx context.Context, conn *ConnContext, args [][]byte, out *resp.Reply) error {
		if len(args) != 2 {
			return fmt.Errorf("wrong number of arguments for 'echo' command")
		}
		out.SetString(args[1])
		return nil
	}))
	table.MustRegister("GET", HandlerFunc(store.get))
	table.MustRegister("SET", HandlerFunc(store.set))
	table.MustRegister("DEL", HandlerFunc(store.del))
	table.MustRegister("INCRBY", HandlerFunc(store.incrBy))
	return table
}

type testStore struct {
	mu      sync.Mutex
	entries map[string]string
}

func (s *testStore) get(ctx context.Context, conn *ConnContext, args [][]byte, out *resp.Reply) error {
	if len(args) != 2 {
		return fmt.Errorf("wrong number of arguments for 'get' command")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	value, found := s.entries[string(args[1])]
	if !found {
		out.SetNil()
		return nil
	}
	out.SetString([]byte(value))
	return nil
}

func (s *testStore) set(ctx context.Context, conn *ConnContext, args [][]byte, out *resp.Reply) error {
	if len(args) < 3 {
		return fmt.Errorf("wrong number of arguments for 'set' command")
	}
	key, value := string(args[1]), string(args[2])

	onlyIfAbsent := false
	for _, opt := range args[3:] {
		if strings.EqualFold(string(opt), "NX") {
			onlyIfAbsent = true
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.entries[key]; found && onlyIfAbsent {
		out.SetNil()
		return nil
	}
	s.entries[key] = value
	out.SetStatus("OK")
	return nil
}

func (s *testStore) del(ctx context.Context, conn *ConnContext, args [][]byte, out *resp.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := int64(0)
	for _, key := range args[1:] {
		if _, found := s.entries[string(key)]; found {
			delete(s.entries, string(key))
			removed++
		}
	}
	out.SetInteger(removed)
	return nil
}

func (s *testStore) incrBy(ctx context.Context, conn *ConnContext, args [][]byte, out *resp.Reply) error {
	if len(args) != 3 {
		return fmt.Errorf("wrong number of arguments for 'incrby' command")
	}
	delta, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		out.SetError("ERR value is not an integer or out of range")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(args[1])
	current := int64(0)
	if existing, found := s.entries[key]; found {
		current, err = strconv.ParseInt(existing, 10, 64)
		if err != nil {
			out.SetError("ERR value is not an integer or out of range")
			return nil
		}
	}
	current += delta
	s.entries[key] = strconv.FormatInt(current, 10)
	out.SetInteger(current)
	return nil
}

// responseFromWire parses a raw reply stream, as a server would have
// sent it.
func responseFromWire(t testing.TB, wire string, commandCount int) *resp.Response {
	t.Helper()

	var buf resp.Buffer
	buf.WriteString(wire)

	rsp := &resp.Response{}
	complete, err := rsp.Consume(&buf, commandCount)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if !complete {
		t.Fatalf("incomplete reply stream: %q", wire)
	}
	return rsp
}
