package redisproto

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/pior/redisproto/resp"
)

var ctx = context.Background()

// replayConn is a net.Conn whose reads cycle through canned replies, so
// any number of requests can run over one connection.
type replayConn struct {
	replies []string
	next    int
}

func newReplayConn(replies ...string) *replayConn {
	return &replayConn{replies: replies}
}

func (c *replayConn) Read(b []byte) (int, error) {
	reply := c.replies[c.next%len(c.replies)]
	c.next++
	return copy(b, reply), nil
}

func (c *replayConn) Write(b []byte) (int, error) { return len(b), nil }
func (c *replayConn) Close() error                { return nil }

func (c *replayConn) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
}

func (c *replayConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 6379}
}

func (c *replayConn) SetDeadline(t time.Time) error      { return nil }
func (c *replayConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *replayConn) SetWriteDeadline(t time.Time) error { return nil }

// newTestClient builds a client whose single connection is netConn,
// bypassing the dialer.
func newTestClient(tb testing.TB, netConn net.Conn) *Client {
	tb.Helper()

	client, err := NewClient(NewStaticServers("127.0.0.1:6379"), Config{
		MaxSize: 1,
		constructor: func(ctx context.Context) (*Connection, error) {
			return NewConnection(netConn), nil
		},
	})
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(client.Close)
	return client
}

// BenchmarkClient_Get benchmarks the Get method
func BenchmarkClient_Get(b *testing.B) {
	client := newTestClient(b, newReplayConn("$5\r\nhello\r\n"))

	for b.Loop() {
		_, _ = client.Get(ctx, "testkey")
	}
}

// BenchmarkClient_Get_Miss benchmarks Get with a missing key
func BenchmarkClient_Get_Miss(b *testing.B) {
	client := newTestClient(b, newReplayConn("$-1\r\n"))

	for b.Loop() {
		_, _ = client.Get(ctx, "testkey")
	}
}

// BenchmarkClient_Set benchmarks the Set method
func BenchmarkClient_Set(b *testing.B) {
	client := newTestClient(b, newReplayConn("+OK\r\n"))
	item := Item{
		Key:   "key",
		Value: []byte("value"),
		TTL:   NoTTL,
	}

	for b.Loop() {
		_ = client.Set(ctx, item)
	}
}

// BenchmarkClient_Set_WithTTL benchmarks Set with TTL
func BenchmarkClient_Set_WithTTL(b *testing.B) {
	client := newTestClient(b, newReplayConn("+OK\r\n"))
	item := Item{
		Key:   "key",
		Value: []byte("value"),
		TTL:   60 * time.Second,
	}

	for b.Loop() {
		_ = client.Set(ctx, item)
	}
}

// BenchmarkClient_Set_LargeValue benchmarks Set with 10KB value
func BenchmarkClient_Set_LargeValue(b *testing.B) {
	client := newTestClient(b, newReplayConn("+OK\r\n"))
	item := Item{
		Key:   "key",
		Value: make([]byte, 10240),
		TTL:   NoTTL,
	}

	for b.Loop() {
		_ = client.Set(ctx, item)
	}
}

// BenchmarkClient_Add benchmarks the Add method
func BenchmarkClient_Add(b *testing.B) {
	client := newTestClient(b, newReplayConn("+OK\r\n"))
	item := Item{
		Key:   "key",
		Value: []byte("value"),
		TTL:   NoTTL,
	}

	for b.Loop() {
		_ = client.Add(ctx, item)
	}
}

// BenchmarkClient_Delete benchmarks the Delete method
func BenchmarkClient_Delete(b *testing.B) {
	client := newTestClient(b, newReplayConn(":1\r\n"))

	for b.Loop() {
		_ = client.Delete(ctx, "key")
	}
}

// BenchmarkClient_Increment benchmarks the Increment method
func BenchmarkClient_Increment(b *testing.B) {
	client := newTestClient(b, newReplayConn(":5\r\n"))

	for b.Loop() {
		_, _ = client.Increment(ctx, "counter", 1)
	}
}

// BenchmarkClient_Increment_NegativeDelta benchmarks Increment with negative delta
func BenchmarkClient_Increment_NegativeDelta(b *testing.B) {
	client := newTestClient(b, newReplayConn(":0\r\n"))

	for b.Loop() {
		_, _ = client.Increment(ctx, "counter", -1)
	}
}

// BenchmarkClient_Do_Pipeline benchmarks a ten command pipeline per call
func BenchmarkClient_Do_Pipeline(b *testing.B) {
	client := newTestClient(b, newReplayConn(strings.Repeat("+PONG\r\n", 10)))

	req := &resp.Request{}
	for range 10 {
		if err := req.Append("PING"); err != nil {
			b.Fatal(err)
		}
	}

	for b.Loop() {
		_, _ = client.Do(ctx, "key", req)
	}
}

// BenchmarkClient_MixedOperations benchmarks a mix of operations
func BenchmarkClient_MixedOperations(b *testing.B) {
	client := newTestClient(b, newReplayConn("+OK\r\n", "$5\r\nhello\r\n", ":1\r\n", ":5\r\n"))
	item := Item{
		Key:   "key",
		Value: []byte("value"),
		TTL:   NoTTL,
	}

	for i := range b.N {
		switch i % 4 {
		case 0:
			_ = client.Set(ctx, item)
		case 1:
			_, _ = client.Get(ctx, "key")
		case 2:
			_ = client.Delete(ctx, "key")
		case 3:
			_, _ = client.Increment(ctx, "counter", 1)
		}
	}
}
