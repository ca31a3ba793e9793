package resp

import (
	"bytes"
	"fmt"
	"strings"
)

// Request accumulates RESP-encoded commands for pipelined execution:
// appends encode immediately into one buffer, Serialize hands the whole
// batch to the transport as a single write.
//
// The first append failure poisons the request: the buffer freezes,
// every later append returns the stored error, and Serialize refuses to
// emit anything. This keeps a half-built pipeline off the wire.
//
// The zero value is an empty request ready for appends.
type Request struct {
	buf      Buffer
	ncommand int
	err      error // sticky: first append failure, nil while healthy
}

// Append encodes one pre-formed command line (quote-aware, see
// EncodeCommand) and adds it to the pipeline.
func (r *Request) Append(command string) error {
	if r.err != nil {
		return r.err
	}
	if err := EncodeCommand(&r.buf, command); err != nil {
		r.err = err
		return err
	}
	r.ncommand++
	return nil
}

// AppendArgs encodes one command from discrete binary-safe tokens
// (args[0] is the command name) and adds it to the pipeline.
func (r *Request) AppendArgs(args ...[]byte) error {
	if r.err != nil {
		return r.err
	}
	if err := EncodeCommandArgs(&r.buf, args...); err != nil {
		r.err = err
		return err
	}
	r.ncommand++
	return nil
}

// Appendf encodes one printf-formatted command line and adds it to the
// pipeline. The result is tokenized like Append.
func (r *Request) Appendf(format string, a ...any) error {
	return r.Append(fmt.Sprintf(format, a...))
}

// CommandCount returns the number of successfully appended commands.
// It is the expected reply count for the matching Response.
func (r *Request) CommandCount() int {
	return r.ncommand
}

// Err returns the error that poisoned the request, nil while healthy.
func (r *Request) Err() error {
	return r.err
}

// Serialize returns the wire encoding of every appended command in call
// order. The slice aliases the request's buffer and is valid until the
// next mutating call. A poisoned request serializes nothing and returns
// the stored error. Serialize does not consume the request: it can be
// repeated and the request reused.
func (r *Request) Serialize() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.buf.Bytes(), nil
}

// Merge appends other's commands after r's: buffers concatenate in
// order, counts sum, and a poison on either side carries over. Merging a
// request with itself is rejected as a programming error.
func (r *Request) Merge(other *Request) error {
	if r == other {
		return ErrSelfMerge
	}
	if r.err == nil {
		r.err = other.err
	}
	r.buf.Write(other.buf.Bytes())
	r.ncommand += other.ncommand
	return nil
}

// Reset empties the request and clears any poison.
func (r *Request) Reset() {
	r.buf.Reset()
	r.ncommand = 0
	r.err = nil
}

// ByteSize returns the size of the serialized pipeline in bytes.
func (r *Request) ByteSize() int {
	return r.buf.Len()
}

// IsInitialized reports whether at least one command was appended.
func (r *Request) IsInitialized() bool {
	return r.ncommand > 0
}

// ProtocolName identifies the message for generic transport dispatch.
func (r *Request) ProtocolName() string {
	return protocolName
}

// Dump renders the accumulated commands for diagnostics. Line
// terminators appear as the literal text \r\n when escapeTerminators is
// true, and collapse to a single space otherwise. A poisoned request
// gets a trailing [ERROR] marker. No protocol effect.
func (r *Request) Dump(escapeTerminators bool) string {
	var sb strings.Builder
	rest := r.buf.Bytes()
	for len(rest) > 0 {
		i := bytes.Index(rest, crlfBytes)
		if i < 0 {
			sb.Write(rest)
			break
		}
		sb.Write(rest[:i])
		if escapeTerminators {
			sb.WriteString(`\r\n`)
		} else {
			sb.WriteByte(' ')
		}
		rest = rest[i+2:]
	}
	if r.err != nil {
		sb.WriteString("[ERROR]")
	}
	return sb.String()
}

// String renders the request with escaped terminators.
func (r *Request) String() string {
	return r.Dump(true)
}
