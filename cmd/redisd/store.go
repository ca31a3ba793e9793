package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pior/redisproto"
	"github.com/pior/redisproto/resp"
)

var errNotInteger = errors.New("value is not an integer or out of range")

type putMode int

const (
	putAlways putMode = iota
	putIfAbsent
	putIfPresent
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// store is a flat key/value map with per-key expiry. Expired entries
// are dropped lazily on access.
type store struct {
	mu      sync.Mutex
	entries map[string]entry
}

func newStore() *store {
	return &store{entries: make(map[string]entry)}
}

func (s *store) get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.entries[key]
	if !found {
		return nil, false
	}
	if e.expired(time.Now()) {
		delete(s.entries, key)
		return nil, false
	}
	return e.value, true
}

func (s *store) put(key string, value []byte, ttl time.Duration, mode putMode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	existing, found := s.entries[key]
	if found && existing.expired(now) {
		delete(s.entries, key)
		found = false
	}
	if mode == putIfAbsent && found {
		return false
	}
	if mode == putIfPresent && !found {
		return false
	}

	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	s.entries[key] = e
	return true
}

func (s *store) del(keys ...string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var deleted int64
	for _, key := range keys {
		e, found := s.entries[key]
		if !found {
			continue
		}
		delete(s.entries, key)
		if !e.expired(now) {
			deleted++
		}
	}
	return deleted
}

func (s *store) exists(keys ...string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var count int64
	for _, key := range keys {
		e, found := s.entries[key]
		if !found {
			continue
		}
		if e.expired(now) {
			delete(s.entries, key)
			continue
		}
		count++
	}
	return count
}

// incrBy adds delta to the integer at key, treating a missing key as
// zero. The expiry of an existing entry is preserved.
func (s *store) incrBy(key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e, found := s.entries[key]
	if found && e.expired(now) {
		delete(s.entries, key)
		found = false
		e = entry{}
	}

	var current int64
	if found {
		var err error
		current, err = strconv.ParseInt(string(e.value), 10, 64)
		if err != nil {
			return 0, errNotInteger
		}
	}

	updated := current + delta
	e.value = []byte(strconv.FormatInt(updated, 10))
	s.entries[key] = e
	return updated, nil
}

// registerStoreHandlers installs the data commands plus PING and ECHO.
func registerStoreHandlers(table *redisproto.CommandTable, st *store) {
	table.MustRegister("GET", redisproto.HandlerFunc(st.handleGet))
	table.MustRegister("SET", redisproto.HandlerFunc(st.handleSet))
	table.MustRegister("DEL", redisproto.HandlerFunc(st.handleDel))
	table.MustRegister("EXISTS", redisproto.HandlerFunc(st.handleExists))
	table.MustRegister("INCR", redisproto.HandlerFunc(st.handleIncr))
	table.MustRegister("INCRBY", redisproto.HandlerFunc(st.handleIncrBy))
	table.MustRegister("DECR", redisproto.HandlerFunc(st.handleDecr))
	table.MustRegister("DECRBY", redisproto.HandlerFunc(st.handleDecrBy))
	table.MustRegister("PING", redisproto.HandlerFunc(handlePing))
	table.MustRegister("ECHO", redisproto.HandlerFunc(handleEcho))
}

func wrongArity(args [][]byte) error {
	return fmt.Errorf("wrong number of arguments for '%s' command", strings.ToLower(string(args[0])))
}

func (s *store) handleGet(ctx context.Context, conn *redisproto.ConnContext, args [][]byte, out *resp.Reply) error {
	if len(args) != 2 {
		return wrongArity(args)
	}
	value, found := s.get(string(args[1]))
	if !found {
		out.SetNil()
		return nil
	}
	out.SetString(value)
	return nil
}

// handleSet implements SET key value [EX seconds] [PX milliseconds] [NX|XX].
func (s *store) handleSet(ctx context.Context, conn *redisproto.ConnContext, args [][]byte, out *resp.Reply) error {
	if len(args) < 3 {
		return wrongArity(args)
	}

	key := string(args[1])
	value := append([]byte(nil), args[2]...) // args alias the parse arena
	var ttl time.Duration
	mode := putAlways

	for i := 3; i < len(args); i++ {
		switch option := strings.ToUpper(string(args[i])); option {
		case "EX", "PX":
			i++
			if i >= len(args) {
				return errors.New("syntax error")
			}
			n, err := strconv.ParseInt(string(args[i]), 10, 64)
			if err != nil || n <= 0 {
				return errors.New("invalid expire time in 'set' command")
			}
			if option == "EX" {
				ttl = time.Duration(n) * time.Second
			} else {
				ttl = time.Duration(n) * time.Millisecond
			}
		case "NX":
			mode = putIfAbsent
		case "XX":
			mode = putIfPresent
		default:
			return errors.New("syntax error")
		}
	}

	if !s.put(key, value, ttl, mode) {
		out.SetNil()
		return nil
	}
	out.SetStatus("OK")
	return nil
}

func (s *store) handleDel(ctx context.Context, conn *redisproto.ConnContext, args [][]byte, out *resp.Reply) error {
	if len(args) < 2 {
		return wrongArity(args)
	}
	keys := make([]string, len(args)-1)
	for i, arg := range args[1:] {
		keys[i] = string(arg)
	}
	out.SetInteger(s.del(keys...))
	return nil
}

func (s *store) handleExists(ctx context.Context, conn *redisproto.ConnContext, args [][]byte, out *resp.Reply) error {
	if len(args) < 2 {
		return wrongArity(args)
	}
	keys := make([]string, len(args)-1)
	for i, arg := range args[1:] {
		keys[i] = string(arg)
	}
	out.SetInteger(s.exists(keys...))
	return nil
}

func (s *store) handleIncr(ctx context.Context, conn *redisproto.ConnContext, args [][]byte, out *resp.Reply) error {
	if len(args) != 2 {
		return wrongArity(args)
	}
	return s.applyDelta(string(args[1]), 1, out)
}

func (s *store) handleDecr(ctx context.Context, conn *redisproto.ConnContext, args [][]byte, out *resp.Reply) error {
	if len(args) != 2 {
		return wrongArity(args)
	}
	return s.applyDelta(string(args[1]), -1, out)
}

func (s *store) handleIncrBy(ctx context.Context, conn *redisproto.ConnContext, args [][]byte, out *resp.Reply) error {
	if len(args) != 3 {
		return wrongArity(args)
	}
	delta, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		return errNotInteger
	}
	return s.applyDelta(string(args[1]), delta, out)
}

func (s *store) handleDecrBy(ctx context.Context, conn *redisproto.ConnContext, args [][]byte, out *resp.Reply) error {
	if len(args) != 3 {
		return wrongArity(args)
	}
	delta, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		return errNotInteger
	}
	return s.applyDelta(string(args[1]), -delta, out)
}

func (s *store) applyDelta(key string, delta int64, out *resp.Reply) error {
	value, err := s.incrBy(key, delta)
	if err != nil {
		return err
	}
	out.SetInteger(value)
	return nil
}

func handlePing(ctx context.Context, conn *redisproto.ConnContext, args [][]byte, out *resp.Reply) error {
	switch len(args) {
	case 1:
		out.SetStatus("PONG")
	case 2:
		out.SetString(args[1])
	default:
		return wrongArity(args)
	}
	return nil
}

func handleEcho(ctx context.Context, conn *redisproto.ConnContext, args [][]byte, out *resp.Reply) error {
	if len(args) != 2 {
		return wrongArity(args)
	}
	out.SetString(args[1])
	return nil
}
