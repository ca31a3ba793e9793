package main

import (
	"context"
	"errors"
	"strings"

	"github.com/pior/redisproto"
	"github.com/pior/redisproto/resp"
)

// multiHandler implements MULTI. Starting a transaction installs a
// transaction session on the connection: from then on every command of
// that connection is queued instead of executed, until EXEC or DISCARD.
type multiHandler struct {
	table *redisproto.CommandTable
}

func (m *multiHandler) Execute(ctx context.Context, conn *redisproto.ConnContext, args [][]byte, out *resp.Reply) error {
	if len(args) != 1 {
		return wrongArity(args)
	}

	tx, err := redisproto.BeginTransaction(m)
	if err != nil {
		return err
	}
	session, ok := tx.(redisproto.SessionHandler)
	if !ok {
		return errors.New("transaction handler cannot take over the connection")
	}
	if err := conn.ReplaceSession(session); err != nil {
		return err
	}
	out.SetStatus("OK")
	return nil
}

func (m *multiHandler) BeginTransaction() (redisproto.Handler, error) {
	return &transactionSession{table: m.table}, nil
}

var _ redisproto.TransactionStarter = (*multiHandler)(nil)

// transactionSession queues commands while installed on a connection.
// EXEC uninstalls it, replays the queue and replies with the array of
// results. DISCARD just uninstalls.
type transactionSession struct {
	table   *redisproto.CommandTable
	queued  []queuedCommand
	aborted bool
}

type queuedCommand struct {
	handler redisproto.Handler
	args    [][]byte
}

var _ redisproto.SessionHandler = (*transactionSession)(nil)

func (t *transactionSession) Execute(ctx context.Context, conn *redisproto.ConnContext, args [][]byte, out *resp.Reply) error {
	switch strings.ToUpper(string(args[0])) {
	case "EXEC":
		return t.exec(ctx, conn, out)
	case "DISCARD":
		if err := conn.ReplaceSession(nil); err != nil {
			return err
		}
		out.SetStatus("OK")
		return nil
	case "MULTI":
		return errors.New("MULTI calls can not be nested")
	default:
		return t.queue(args, out)
	}
}

func (t *transactionSession) queue(args [][]byte, out *resp.Reply) error {
	handler, found := t.table.Lookup(string(args[0]))
	if !found {
		t.aborted = true
		out.SetError("ERR unknown command '" + string(args[0]) + "'")
		return nil
	}

	// The tokens alias the parse arena, the queue needs its own copies.
	command := make([][]byte, len(args))
	for i, arg := range args {
		command[i] = append([]byte(nil), arg...)
	}
	t.queued = append(t.queued, queuedCommand{handler: handler, args: command})

	out.SetStatus("QUEUED")
	return nil
}

func (t *transactionSession) exec(ctx context.Context, conn *redisproto.ConnContext, out *resp.Reply) error {
	// Uninstalling closes this session, so take the queue first.
	queued, aborted := t.queued, t.aborted
	if err := conn.ReplaceSession(nil); err != nil {
		return err
	}

	if aborted {
		out.SetError("EXECABORT Transaction discarded because of previous errors.")
		return nil
	}

	elems := out.SetArray(len(queued))
	for i, command := range queued {
		if err := command.handler.Execute(ctx, conn, command.args, &elems[i]); err != nil {
			elems[i].SetError("ERR " + err.Error())
		}
	}
	return nil
}

func (t *transactionSession) Close() error {
	t.queued = nil
	return nil
}
