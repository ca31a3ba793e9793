package redisproto

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pior/redisproto/resp"
)

// NoTTL represents an infinite TTL (no expiration).
const NoTTL = 0

// ErrKeyExists is returned by Add when the key is already set.
var ErrKeyExists = errors.New("redisproto: key already exists")

// Item is one key/value entry.
type Item struct {
	Key   string
	Value []byte
	TTL   time.Duration
	Found bool // indicates whether the key was found
}

// ServerError is an error reply from the server, like "ERR unknown command".
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "redis: " + e.Message
}

// Querier is the typed command interface implemented by Client and Commands.
type Querier interface {
	Get(ctx context.Context, key string) (Item, error)
	Set(ctx context.Context, item Item) error
	Add(ctx context.Context, item Item) error
	Delete(ctx context.Context, key string) error
	Increment(ctx context.Context, key string, delta int64) (int64, error)
}

// Executor executes a request pipeline on the server selected for key.
// Client is the usual implementation.
type Executor interface {
	Do(ctx context.Context, key string, req *resp.Request) (*resp.Response, error)
}

// BatchExecutor routes keyed commands to servers. BatchCommands uses it
// to build one pipelined request per server. Client is the usual
// implementation.
type BatchExecutor interface {
	ServerForKey(key string) (string, error)
	DoAddr(ctx context.Context, addr string, req *resp.Request) (*resp.Response, error)
}

// Commands implements the typed commands on top of an Executor.
//
// Each method encodes one command, executes it, and interprets the reply.
// Server error replies are returned as *ServerError.
type Commands struct {
	executor Executor
}

func NewCommands(executor Executor) *Commands {
	return &Commands{executor: executor}
}

var _ Querier = (*Commands)(nil)

// Get returns the item stored under key. A missing key is not an error:
// the returned item has Found set to false.
func (c *Commands) Get(ctx context.Context, key string) (Item, error) {
	req := &resp.Request{}
	if err := req.AppendArgs([]byte("GET"), []byte(key)); err != nil {
		return Item{}, err
	}

	reply, err := c.execOne(ctx, key, req)
	if err != nil {
		return Item{}, err
	}

	if reply.IsNil() {
		return Item{Key: key}, nil
	}
	if !reply.IsString() {
		return Item{}, fmt.Errorf("redisproto: unexpected %s reply for GET", reply.Type())
	}
	return Item{Key: key, Value: bytes.Clone(reply.Bytes()), Found: true}, nil
}

// Set stores the item, replacing any existing value. A TTL above zero is
// applied with second granularity.
func (c *Commands) Set(ctx context.Context, item Item) error {
	req := &resp.Request{}
	if err := req.AppendArgs(setCommandArgs(item, false)...); err != nil {
		return err
	}

	reply, err := c.execOne(ctx, item.Key, req)
	if err != nil {
		return err
	}
	if reply.Status() != "OK" {
		return fmt.Errorf("redisproto: unexpected reply for SET: %s", reply)
	}
	return nil
}

// Add stores the item only if the key is not already set.
// Returns ErrKeyExists otherwise.
func (c *Commands) Add(ctx context.Context, item Item) error {
	req := &resp.Request{}
	if err := req.AppendArgs(setCommandArgs(item, true)...); err != nil {
		return err
	}

	reply, err := c.execOne(ctx, item.Key, req)
	if err != nil {
		return err
	}
	if reply.IsNil() {
		return ErrKeyExists
	}
	if reply.Status() != "OK" {
		return fmt.Errorf("redisproto: unexpected reply for SET NX: %s", reply)
	}
	return nil
}

// Delete removes the key. Delete is successful even if the key doesn't exist.
func (c *Commands) Delete(ctx context.Context, key string) error {
	req := &resp.Request{}
	if err := req.AppendArgs([]byte("DEL"), []byte(key)); err != nil {
		return err
	}

	reply, err := c.execOne(ctx, key, req)
	if err != nil {
		return err
	}
	if !reply.IsInteger() {
		return fmt.Errorf("redisproto: unexpected %s reply for DEL", reply.Type())
	}
	return nil
}

// Increment adds delta to the integer stored under key and returns the new
// value. A missing key is treated as zero. The delta can be negative.
func (c *Commands) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	req := &resp.Request{}
	err := req.AppendArgs([]byte("INCRBY"), []byte(key), []byte(strconv.FormatInt(delta, 10)))
	if err != nil {
		return 0, err
	}

	reply, err := c.execOne(ctx, key, req)
	if err != nil {
		return 0, err
	}
	if !reply.IsInteger() {
		return 0, fmt.Errorf("redisproto: unexpected %s reply for INCRBY", reply.Type())
	}
	return reply.Integer(), nil
}

// Echo returns the message echoed by the server.
func (c *Commands) Echo(ctx context.Context, message string) (string, error) {
	req := &resp.Request{}
	if err := req.AppendArgs([]byte("ECHO"), []byte(message)); err != nil {
		return "", err
	}

	reply, err := c.execOne(ctx, message, req)
	if err != nil {
		return "", err
	}
	if !reply.IsString() {
		return "", fmt.Errorf("redisproto: unexpected %s reply for ECHO", reply.Type())
	}
	return string(reply.Bytes()), nil
}

func setCommandArgs(item Item, onlyIfAbsent bool) [][]byte {
	args := [][]byte{[]byte("SET"), []byte(item.Key), item.Value}
	if item.TTL > 0 {
		seconds := int64(item.TTL.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		args = append(args, []byte("EX"), []byte(strconv.FormatInt(seconds, 10)))
	}
	if onlyIfAbsent {
		args = append(args, []byte("NX"))
	}
	return args
}

// execOne executes a single-command request and returns its reply.
// An error reply is returned as *ServerError.
func (c *Commands) execOne(ctx context.Context, key string, req *resp.Request) (*resp.Reply, error) {
	rsp, err := c.executor.Do(ctx, key, req)
	if err != nil {
		return nil, err
	}
	if rsp.ReplyCount() != 1 {
		return nil, fmt.Errorf("redisproto: expected one reply, got %d", rsp.ReplyCount())
	}

	reply := rsp.Reply(0)
	if reply.IsError() {
		return nil, &ServerError{Message: reply.ErrorMessage()}
	}
	return reply, nil
}
