package redisproto

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/redisproto/resp"
)

// Replies come back in command order: the response to a pipelined
// request can be read off by position.
func TestPipelineOrderedReplies(t *testing.T) {
	client := newServerClient(t, Config{MaxSize: 1})
	ctx := context.Background()

	req := &resp.Request{}
	require.NoError(t, req.Append("SET p:a 1"))
	require.NoError(t, req.Append("SET p:b 2"))
	require.NoError(t, req.Append("GET p:a"))
	require.NoError(t, req.Append("GET p:b"))
	require.NoError(t, req.Append("INCRBY p:n 40"))
	require.NoError(t, req.Append("PING"))
	require.Equal(t, 6, req.CommandCount())

	rsp, err := client.Do(ctx, "p:a", req)
	require.NoError(t, err)
	require.Equal(t, 6, rsp.ReplyCount())

	assert.Equal(t, "OK", rsp.Reply(0).Status())
	assert.Equal(t, "OK", rsp.Reply(1).Status())
	assert.Equal(t, []byte("1"), rsp.Reply(2).Bytes())
	assert.Equal(t, []byte("2"), rsp.Reply(3).Bytes())
	assert.Equal(t, int64(40), rsp.Reply(4).Integer())
	assert.Equal(t, "PONG", rsp.Reply(5).Status())
}

// A large pipeline exercises reply collection across several socket
// reads on one connection.
func TestPipelineManyCommands(t *testing.T) {
	addr := startTestServer(t, testStoreTable(t))
	conn := dialTestConn(t, addr)
	ctx := context.Background()

	const n = 500

	req := &resp.Request{}
	for i := range n {
		require.NoError(t, req.Appendf("SET pipe:%d value-%d", i, i))
	}
	rsp, err := conn.Execute(ctx, req)
	require.NoError(t, err)
	require.Equal(t, n, rsp.ReplyCount())

	req = &resp.Request{}
	for i := range n {
		require.NoError(t, req.Appendf("GET pipe:%d", i))
	}
	rsp, err = conn.Execute(ctx, req)
	require.NoError(t, err)
	require.Equal(t, n, rsp.ReplyCount())

	for i := range n {
		assert.Equal(t, fmt.Sprintf("value-%d", i), string(rsp.Reply(i).Bytes()))
	}
}

// Error replies are positional data: they do not fail the pipeline and
// do not shift later replies.
func TestPipelineErrorReplyKeepsOrder(t *testing.T) {
	client := newServerClient(t, Config{MaxSize: 1})

	req := &resp.Request{}
	require.NoError(t, req.Append("SET p:k v"))
	require.NoError(t, req.Append("INCRBY p:k nope"))
	require.NoError(t, req.Append("GET p:k"))

	rsp, err := client.Do(context.Background(), "p:k", req)
	require.NoError(t, err)
	require.Equal(t, 3, rsp.ReplyCount())

	assert.Equal(t, "OK", rsp.Reply(0).Status())
	assert.True(t, rsp.Reply(1).IsError())
	assert.Equal(t, []byte("v"), rsp.Reply(2).Bytes())
}

// Responses from separate round trips can be merged into one, keeping
// the replies usable after the source is reset.
func TestPipelineMergeResponses(t *testing.T) {
	client := newServerClient(t, Config{MaxSize: 1})
	ctx := context.Background()

	first := &resp.Request{}
	require.NoError(t, first.Append("SET m:k merged"))
	rsp1, err := client.Do(ctx, "m:k", first)
	require.NoError(t, err)

	second := &resp.Request{}
	require.NoError(t, second.Append("GET m:k"))
	rsp2, err := client.Do(ctx, "m:k", second)
	require.NoError(t, err)

	require.NoError(t, rsp1.Merge(rsp2))
	rsp2.Reset()

	require.Equal(t, 2, rsp1.ReplyCount())
	assert.Equal(t, "OK", rsp1.Reply(0).Status())
	assert.Equal(t, []byte("merged"), rsp1.Reply(1).Bytes())
}
