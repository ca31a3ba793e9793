package redisproto

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/pior/redisproto/resp"
)

// ErrTransactionUnsupported is returned by BeginTransaction when the
// handler does not implement TransactionStarter.
var ErrTransactionUnsupported = errors.New("redisproto: handler does not support transactions")

// Handler executes one command on a connection.
//
// args holds the parsed command tokens, args[0] being the command name.
// The tokens alias the connection's parse arena and are only valid for
// the duration of the call: copy what must outlive it. The handler fills
// out with the reply to send back.
//
// An error return is reported to the client as a generic "-ERR ..."
// reply. Handlers that need a specific error code fill out with
// SetError and return nil instead.
type Handler interface {
	Execute(ctx context.Context, conn *ConnContext, args [][]byte, out *resp.Reply) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, conn *ConnContext, args [][]byte, out *resp.Reply) error

func (f HandlerFunc) Execute(ctx context.Context, conn *ConnContext, args [][]byte, out *resp.Reply) error {
	return f(ctx, conn, args, out)
}

// TransactionStarter is the optional handler capability of starting a
// transaction. BeginTransaction returns the handler that executes the
// queued commands; the caller installs it on the connection with
// ConnContext.ReplaceSession.
type TransactionStarter interface {
	BeginTransaction() (Handler, error)
}

// BeginTransaction starts a transaction on h, or fails with
// ErrTransactionUnsupported when h does not implement
// TransactionStarter.
func BeginTransaction(h Handler) (Handler, error) {
	starter, ok := h.(TransactionStarter)
	if !ok {
		return nil, ErrTransactionUnsupported
	}
	return starter.BeginTransaction()
}

// DuplicateHandlerError is returned when a command name is registered
// twice.
type DuplicateHandlerError struct {
	Name string
}

func (e *DuplicateHandlerError) Error() string {
	return fmt.Sprintf("redisproto: handler already registered for %q", e.Name)
}

// CommandTable maps command names to handlers. Names are
// case-insensitive: registration lower-cases them and lookup folds the
// probe the same way.
//
// The table is not synchronized. Register every handler before serving.
type CommandTable struct {
	handlers map[string]Handler
}

func NewCommandTable() *CommandTable {
	return &CommandTable{handlers: make(map[string]Handler)}
}

// Register stores the handler under the lower-cased name. A duplicate
// registration fails with *DuplicateHandlerError and does not
// overwrite.
func (t *CommandTable) Register(name string, h Handler) error {
	key := strings.ToLower(name)
	if _, found := t.handlers[key]; found {
		return &DuplicateHandlerError{Name: name}
	}
	t.handlers[key] = h
	return nil
}

// MustRegister is Register, panicking on error. For building tables in
// variable initializers.
func (t *CommandTable) MustRegister(name string, h Handler) {
	if err := t.Register(name, h); err != nil {
		panic(err)
	}
}

// Lookup returns the handler for name, folding case.
func (t *CommandTable) Lookup(name string) (Handler, bool) {
	h, found := t.handlers[strings.ToLower(name)]
	return h, found
}

// Names returns the registered command names, sorted.
func (t *CommandTable) Names() []string {
	names := make([]string, 0, len(t.handlers))
	for name := range t.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
