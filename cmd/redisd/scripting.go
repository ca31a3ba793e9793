package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/pior/redisproto"
	"github.com/pior/redisproto/resp"
)

// scriptingHandler implements EVAL: a Lua script runs with KEYS and
// ARGV set, and redis.call/redis.pcall dispatching through the command
// table. Each call gets a fresh Lua state.
type scriptingHandler struct {
	table *redisproto.CommandTable
}

// Execute handles EVAL script numkeys [key ...] [arg ...].
func (h *scriptingHandler) Execute(ctx context.Context, conn *redisproto.ConnContext, args [][]byte, out *resp.Reply) error {
	if len(args) < 3 {
		return wrongArity(args)
	}

	script := string(args[1])
	numKeys, err := strconv.Atoi(string(args[2]))
	if err != nil || numKeys < 0 {
		return errors.New("value is not an integer or out of range")
	}
	if numKeys > len(args)-3 {
		return errors.New("Number of keys can't be greater than number of args")
	}
	keys := args[3 : 3+numKeys]
	argv := args[3+numKeys:]

	L := lua.NewState()
	defer L.Close()

	keysTable := L.NewTable()
	for i, key := range keys {
		keysTable.RawSetInt(i+1, lua.LString(key)) // Lua arrays are 1-indexed
	}
	L.SetGlobal("KEYS", keysTable)

	argvTable := L.NewTable()
	for i, arg := range argv {
		argvTable.RawSetInt(i+1, lua.LString(arg))
	}
	L.SetGlobal("ARGV", argvTable)

	redisTable := L.NewTable()
	L.SetFuncs(redisTable, map[string]lua.LGFunction{
		"call":  h.redisCall(ctx, conn),
		"pcall": h.redisPCall(ctx, conn),
	})
	L.SetGlobal("redis", redisTable)

	if err := L.DoString(script); err != nil {
		return fmt.Errorf("Error running script: %v", err)
	}

	luaToReply(L.Get(-1), out)
	return nil
}

// redisCall implements redis.call(): a command failure aborts the
// script with a Lua error.
func (h *scriptingHandler) redisCall(ctx context.Context, conn *redisproto.ConnContext) lua.LGFunction {
	return func(L *lua.LState) int {
		reply, err := h.dispatch(ctx, conn, L)
		if err != nil {
			L.Error(lua.LString(err.Error()), 1)
			return 0
		}
		L.Push(replyToLua(L, reply))
		return 1
	}
}

// redisPCall implements redis.pcall(): a command failure becomes a
// table with an err field, and the script continues.
func (h *scriptingHandler) redisPCall(ctx context.Context, conn *redisproto.ConnContext) lua.LGFunction {
	return func(L *lua.LState) int {
		reply, err := h.dispatch(ctx, conn, L)
		if err != nil {
			errTable := L.NewTable()
			errTable.RawSetString("err", lua.LString(err.Error()))
			L.Push(errTable)
			return 1
		}
		L.Push(replyToLua(L, reply))
		return 1
	}
}

// dispatch runs one command called from a script through the command
// table.
func (h *scriptingHandler) dispatch(ctx context.Context, conn *redisproto.ConnContext, L *lua.LState) (*resp.Reply, error) {
	argc := L.GetTop()
	if argc == 0 {
		return nil, errors.New("wrong number of arguments for redis command")
	}

	args := make([][]byte, argc)
	for i := 1; i <= argc; i++ {
		args[i-1] = []byte(L.ToString(i))
	}

	name := string(args[0])
	if strings.EqualFold(name, "eval") {
		return nil, errors.New("This Redis command is not allowed from script: eval")
	}
	handler, found := h.table.Lookup(name)
	if !found {
		return nil, fmt.Errorf("Unknown Redis command called from script: %s", name)
	}

	var reply resp.Reply
	if err := handler.Execute(ctx, conn, args, &reply); err != nil {
		return nil, err
	}
	if reply.IsError() {
		return nil, errors.New(reply.ErrorMessage())
	}
	return &reply, nil
}

// replyToLua converts a reply to its Lua value, following the EVAL
// conversion rules: nil becomes false, integers become numbers, bulk
// strings become strings, status lines become tables with an ok field
// and arrays become tables.
func replyToLua(L *lua.LState, reply *resp.Reply) lua.LValue {
	switch reply.Type() {
	case resp.TypeNil:
		return lua.LFalse
	case resp.TypeStatus:
		table := L.NewTable()
		table.RawSetString("ok", lua.LString(reply.Status()))
		return table
	case resp.TypeError:
		table := L.NewTable()
		table.RawSetString("err", lua.LString(reply.ErrorMessage()))
		return table
	case resp.TypeInteger:
		return lua.LNumber(reply.Integer())
	case resp.TypeString:
		return lua.LString(reply.Bytes())
	case resp.TypeArray:
		table := L.NewTable()
		for i := 0; i < reply.Len(); i++ {
			table.RawSetInt(i+1, replyToLua(L, reply.Element(i)))
		}
		return table
	}
	return lua.LNil
}

// luaToReply converts a script's return value to a reply, the inverse
// of replyToLua. Numbers are truncated to integers and false becomes
// nil, as EVAL specifies.
func luaToReply(value lua.LValue, out *resp.Reply) {
	switch v := value.(type) {
	case lua.LBool:
		if v {
			out.SetInteger(1)
		} else {
			out.SetNil()
		}
	case lua.LNumber:
		out.SetInteger(int64(v))
	case lua.LString:
		out.SetString([]byte(v))
	case *lua.LTable:
		if errText := lua.LVAsString(v.RawGetString("err")); errText != "" {
			out.SetError(errText)
			return
		}
		if okText := lua.LVAsString(v.RawGetString("ok")); okText != "" {
			out.SetStatus(okText)
			return
		}
		// Array part only, stopping at the first nil like EVAL does.
		n := 0
		for v.RawGetInt(n+1) != lua.LNil {
			n++
		}
		elems := out.SetArray(n)
		for i := 0; i < n; i++ {
			luaToReply(v.RawGetInt(i+1), &elems[i])
		}
	default:
		out.SetNil()
	}
}
