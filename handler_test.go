package redisproto

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/redisproto/resp"
)

func nopHandler() Handler {
	return HandlerFunc(func(ctx context.Context, conn *ConnContext, args [][]byte, out *resp.Reply) error {
		out.SetStatus("OK")
		return nil
	})
}

func TestCommandTableRegister(t *testing.T) {
	table := NewCommandTable()

	require.NoError(t, table.Register("GET", nopHandler()))
	require.NoError(t, table.Register("SET", nopHandler()))

	_, found := table.Lookup("GET")
	assert.True(t, found)
}

func TestCommandTableRegisterDuplicate(t *testing.T) {
	table := NewCommandTable()
	first := nopHandler()

	require.NoError(t, table.Register("GET", first))

	// A duplicate, in any case, is rejected and does not overwrite
	err := table.Register("get", nopHandler())

	var dupErr *DuplicateHandlerError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "get", dupErr.Name)

	h, found := table.Lookup("GET")
	require.True(t, found)

	var out resp.Reply
	require.NoError(t, h.Execute(context.Background(), nil, [][]byte{[]byte("GET")}, &out))
	assert.Equal(t, "OK", out.Status())
}

func TestCommandTableLookupFoldsCase(t *testing.T) {
	table := NewCommandTable()
	require.NoError(t, table.Register("GetRange", nopHandler()))

	for _, name := range []string{"getrange", "GETRANGE", "GeTrAnGe"} {
		_, found := table.Lookup(name)
		assert.True(t, found, "Lookup(%q) should find the handler", name)
	}

	_, found := table.Lookup("unknown")
	assert.False(t, found)
}

func TestCommandTableMustRegisterPanics(t *testing.T) {
	table := NewCommandTable()
	table.MustRegister("GET", nopHandler())

	assert.Panics(t, func() {
		table.MustRegister("GET", nopHandler())
	})
}

func TestCommandTableNames(t *testing.T) {
	table := NewCommandTable()
	table.MustRegister("SET", nopHandler())
	table.MustRegister("GET", nopHandler())
	table.MustRegister("DEL", nopHandler())

	assert.Equal(t, []string{"del", "get", "set"}, table.Names())
}

func TestHandlerFunc(t *testing.T) {
	called := false
	h := HandlerFunc(func(ctx context.Context, conn *ConnContext, args [][]byte, out *resp.Reply) error {
		called = true
		out.SetInteger(7)
		return nil
	})

	var out resp.Reply
	require.NoError(t, h.Execute(context.Background(), nil, [][]byte{[]byte("X")}, &out))
	assert.True(t, called)
	assert.Equal(t, int64(7), out.Integer())
}

// starterHandler supports transactions by handing out a fixed handler.
type starterHandler struct {
	Handler
	tx  Handler
	err error
}

func (s *starterHandler) BeginTransaction() (Handler, error) {
	return s.tx, s.err
}

func TestBeginTransaction(t *testing.T) {
	t.Run("Supported", func(t *testing.T) {
		tx := nopHandler()
		starter := &starterHandler{Handler: nopHandler(), tx: tx}

		h, err := BeginTransaction(starter)
		require.NoError(t, err)
		assert.NotNil(t, h)
	})

	t.Run("Unsupported", func(t *testing.T) {
		_, err := BeginTransaction(nopHandler())
		require.ErrorIs(t, err, ErrTransactionUnsupported)
	})

	t.Run("StarterFails", func(t *testing.T) {
		boom := errors.New("boom")
		starter := &starterHandler{Handler: nopHandler(), err: boom}

		_, err := BeginTransaction(starter)
		require.ErrorIs(t, err, boom)
	})
}
