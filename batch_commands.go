package redisproto

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pior/redisproto/resp"
)

// BatchCommands provides multi-key operations on top of a BatchExecutor.
// Keys are grouped by server and each group is executed as a single
// pipelined request, one round trip per server.
type BatchCommands struct {
	executor BatchExecutor
}

// NewBatchCommands creates a new BatchCommands instance.
// The executor is usually a Client.
func NewBatchCommands(executor BatchExecutor) *BatchCommands {
	return &BatchCommands{
		executor: executor,
	}
}

// MultiGet retrieves multiple items.
// Returns items in the same order as the keys, with Found=false for missing items.
func (b *BatchCommands) MultiGet(ctx context.Context, keys []string) ([]Item, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	batches, err := b.groupByServer(keys)
	if err != nil {
		return nil, err
	}

	items := make([]Item, len(keys))
	for _, batch := range batches {
		req := &resp.Request{}
		for _, i := range batch.indexes {
			if err := req.AppendArgs([]byte("GET"), []byte(keys[i])); err != nil {
				return nil, err
			}
		}

		rsp, err := b.executor.DoAddr(ctx, batch.addr, req)
		if err != nil {
			return nil, err
		}
		if rsp.ReplyCount() != len(batch.indexes) {
			return nil, fmt.Errorf("redisproto: expected %d replies, got %d", len(batch.indexes), rsp.ReplyCount())
		}

		for n, i := range batch.indexes {
			reply := rsp.Reply(n)
			switch {
			case reply.IsError():
				return nil, &ServerError{Message: reply.ErrorMessage()}
			case reply.IsNil():
				items[i] = Item{Key: keys[i]}
			case reply.IsString():
				items[i] = Item{Key: keys[i], Value: bytes.Clone(reply.Bytes()), Found: true}
			default:
				return nil, fmt.Errorf("redisproto: unexpected %s reply for GET", reply.Type())
			}
		}
	}

	return items, nil
}

// MultiSet stores multiple items.
// Returns error on first failure.
func (b *BatchCommands) MultiSet(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = item.Key
	}
	batches, err := b.groupByServer(keys)
	if err != nil {
		return err
	}

	for _, batch := range batches {
		req := &resp.Request{}
		for _, i := range batch.indexes {
			if err := req.AppendArgs(setCommandArgs(items[i], false)...); err != nil {
				return err
			}
		}

		rsp, err := b.executor.DoAddr(ctx, batch.addr, req)
		if err != nil {
			return err
		}
		if rsp.ReplyCount() != len(batch.indexes) {
			return fmt.Errorf("redisproto: expected %d replies, got %d", len(batch.indexes), rsp.ReplyCount())
		}

		for n, i := range batch.indexes {
			reply := rsp.Reply(n)
			if reply.IsError() {
				return &ServerError{Message: reply.ErrorMessage()}
			}
			if reply.Status() != "OK" {
				return fmt.Errorf("redisproto: unexpected reply for SET %s: %s", items[i].Key, reply)
			}
		}
	}

	return nil
}

// MultiDelete removes multiple keys.
// Like Delete, removing a missing key is not an error.
func (b *BatchCommands) MultiDelete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	batches, err := b.groupByServer(keys)
	if err != nil {
		return err
	}

	for _, batch := range batches {
		req := &resp.Request{}
		for _, i := range batch.indexes {
			if err := req.AppendArgs([]byte("DEL"), []byte(keys[i])); err != nil {
				return err
			}
		}

		rsp, err := b.executor.DoAddr(ctx, batch.addr, req)
		if err != nil {
			return err
		}
		if rsp.ReplyCount() != len(batch.indexes) {
			return fmt.Errorf("redisproto: expected %d replies, got %d", len(batch.indexes), rsp.ReplyCount())
		}

		for n := range batch.indexes {
			reply := rsp.Reply(n)
			if reply.IsError() {
				return &ServerError{Message: reply.ErrorMessage()}
			}
			if !reply.IsInteger() {
				return fmt.Errorf("redisproto: unexpected %s reply for DEL", reply.Type())
			}
		}
	}

	return nil
}

// serverBatch holds the key indexes routed to one server, in input order.
type serverBatch struct {
	addr    string
	indexes []int
}

func (b *BatchCommands) groupByServer(keys []string) ([]serverBatch, error) {
	var batches []serverBatch
	positions := make(map[string]int)

	for i, key := range keys {
		addr, err := b.executor.ServerForKey(key)
		if err != nil {
			return nil, err
		}

		pos, found := positions[addr]
		if !found {
			pos = len(batches)
			positions[addr] = pos
			batches = append(batches, serverBatch{addr: addr})
		}
		batches[pos].indexes = append(batches[pos].indexes, i)
	}
	return batches, nil
}
