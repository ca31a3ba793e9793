package resp

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Reply parse states. A Reply remembers how far it got so Consume can
// resume after a need-more-data outcome without re-reading anything.
const (
	stateFresh       byte = iota // nothing consumed yet
	stateBulkPayload             // bulk header consumed, payload pending
	stateArrayElems              // array header consumed, elements pending
	stateDone                    // value complete
)

// Reply is one RESP value: a closed variant over status, error, integer,
// bulk string, array, and nil. Parsed payloads live in the arena passed
// to Consume and die with it; synthesized payloads (the Set* methods)
// are ordinary heap bytes.
//
// The zero value is an unparsed nil reply.
type Reply struct {
	typ      ReplyType
	integer  int64
	payload  []byte  // status text, error text, or bulk data
	elements []Reply // array elements

	state   byte
	pending int // bulk payload bytes awaited, valid in stateBulkPayload
	nparsed int // completed array elements, valid in stateArrayElems
}

// Consume parses one reply from buf, allocating payloads in a.
//
// It returns (true, nil) when the reply is complete, (false, nil) when
// buf ran out mid-reply, and (false, err) on a protocol violation or
// allocation failure. After a need-more-data outcome the caller appends
// bytes to buf and calls Consume again: consumption is monotonic, bytes
// already removed from buf are never restored or re-counted.
func (r *Reply) Consume(buf *Buffer, a *Arena) (bool, error) {
	switch r.state {
	case stateDone:
		return true, nil
	case stateBulkPayload:
		return r.consumePayload(buf, a)
	case stateArrayElems:
		return r.consumeElements(buf, a)
	}

	line, ok := buf.CutUntil(crlfBytes)
	if !ok {
		return false, nil
	}
	if len(line) == 0 {
		return false, &ProtocolError{Message: "empty reply line"}
	}

	marker, rest := line[0], line[1:]
	switch marker {
	case MarkerStatus, MarkerError:
		p, err := a.Alloc(len(rest))
		if err != nil {
			return false, err
		}
		copy(p, rest)
		r.payload = p
		if marker == MarkerStatus {
			r.typ = TypeStatus
		} else {
			r.typ = TypeError
		}
		r.state = stateDone
		return true, nil

	case MarkerInteger:
		v, ok := parseInt(rest)
		if !ok {
			return false, &ProtocolError{Message: fmt.Sprintf("invalid integer %q", rest)}
		}
		r.typ = TypeInteger
		r.integer = v
		r.state = stateDone
		return true, nil

	case MarkerBulk:
		n, ok := parseInt(rest)
		if !ok || n < -1 {
			return false, &ProtocolError{Message: fmt.Sprintf("invalid bulk length %q", rest)}
		}
		if n == -1 {
			r.typ = TypeNil
			r.state = stateDone
			return true, nil
		}
		if n > MaxBulkLength {
			return false, &AllocationError{Requested: int(n), Limit: MaxBulkLength}
		}
		r.pending = int(n)
		r.state = stateBulkPayload
		return r.consumePayload(buf, a)

	case MarkerArray:
		n, ok := parseInt(rest)
		if !ok || n < -1 {
			return false, &ProtocolError{Message: fmt.Sprintf("invalid array length %q", rest)}
		}
		if n == -1 {
			r.typ = TypeNil
			r.state = stateDone
			return true, nil
		}
		if n > MaxArrayLength {
			return false, &AllocationError{Requested: int(n), Limit: MaxArrayLength}
		}
		r.typ = TypeArray
		if n == 0 {
			r.state = stateDone
			return true, nil
		}
		r.elements = make([]Reply, n)
		r.state = stateArrayElems
		return r.consumeElements(buf, a)
	}

	return false, &ProtocolError{Message: fmt.Sprintf("unknown type marker %q", marker)}
}

// consumePayload completes a bulk string whose header was already cut.
// The whole payload plus its CRLF terminator must be buffered.
func (r *Reply) consumePayload(buf *Buffer, a *Arena) (bool, error) {
	if buf.Len() < r.pending+2 {
		return false, nil
	}
	p, err := a.Alloc(r.pending)
	if err != nil {
		return false, err
	}
	copy(p, buf.Next(r.pending))
	term := buf.Next(2)
	if term[0] != '\r' || term[1] != '\n' {
		return false, &ProtocolError{Message: "bulk payload not terminated by CRLF"}
	}
	r.typ = TypeString
	r.payload = p
	r.state = stateDone
	return true, nil
}

// consumeElements parses array elements in order, resuming at the first
// incomplete one.
func (r *Reply) consumeElements(buf *Buffer, a *Arena) (bool, error) {
	for r.nparsed < len(r.elements) {
		done, err := r.elements[r.nparsed].Consume(buf, a)
		if err != nil {
			return false, err
		}
		if !done {
			return false, nil
		}
		r.nparsed++
	}
	r.state = stateDone
	return true, nil
}

// Reset returns the reply to its zero state. It does not release arena
// storage; that is the owning Response's job.
func (r *Reply) Reset() {
	*r = Reply{}
}

// Swap exchanges the contents of both replies.
func (r *Reply) Swap(other *Reply) {
	*r, *other = *other, *r
}

// CopySameArena makes r an aliasing copy of src. Valid only when both
// replies' payloads live in the same arena: the copy shares storage with
// src and both become invalid together when that arena resets.
func (r *Reply) CopySameArena(src *Reply) {
	*r = *src
}

// CopyCrossArena makes r a deep copy of src with every payload
// reallocated in a. The copy holds no reference into src's arena, so it
// survives src's release.
func (r *Reply) CopyCrossArena(src *Reply, a *Arena) error {
	r.Reset()
	r.typ = src.typ
	r.integer = src.integer
	if src.payload != nil {
		p, err := a.Alloc(len(src.payload))
		if err != nil {
			return err
		}
		copy(p, src.payload)
		r.payload = p
	}
	if src.elements != nil {
		r.elements = make([]Reply, len(src.elements))
		for i := range src.elements {
			if err := r.elements[i].CopyCrossArena(&src.elements[i], a); err != nil {
				return err
			}
		}
		r.nparsed = len(r.elements)
	}
	r.state = stateDone
	return nil
}

// Type returns the variant held by the reply.
func (r *Reply) Type() ReplyType {
	return r.typ
}

// IsNil reports whether the reply is a nil bulk string or nil array.
func (r *Reply) IsNil() bool {
	return r.typ == TypeNil
}

// IsError reports whether the reply is an error.
func (r *Reply) IsError() bool {
	return r.typ == TypeError
}

// IsString reports whether the reply carries text: a bulk string or a
// status line.
func (r *Reply) IsString() bool {
	return r.typ == TypeString || r.typ == TypeStatus
}

// IsInteger reports whether the reply is an integer.
func (r *Reply) IsInteger() bool {
	return r.typ == TypeInteger
}

// IsArray reports whether the reply is an array.
func (r *Reply) IsArray() bool {
	return r.typ == TypeArray
}

// Integer returns the integer value, or 0 for any other type.
func (r *Reply) Integer() int64 {
	if r.typ != TypeInteger {
		return 0
	}
	return r.integer
}

// Bytes returns the payload of a bulk string, status or error reply,
// nil otherwise. The slice aliases arena storage for parsed replies.
func (r *Reply) Bytes() []byte {
	return r.payload
}

// Status returns the text of a status reply, "" otherwise.
func (r *Reply) Status() string {
	if r.typ != TypeStatus {
		return ""
	}
	return string(r.payload)
}

// ErrorMessage returns the text of an error reply, "" otherwise.
func (r *Reply) ErrorMessage() string {
	if r.typ != TypeError {
		return ""
	}
	return string(r.payload)
}

// Len returns the element count of an array reply, 0 otherwise.
func (r *Reply) Len() int {
	if r.typ != TypeArray {
		return 0
	}
	return len(r.elements)
}

// Element returns the i-th element of an array reply, nil when out of
// range or not an array.
func (r *Reply) Element(i int) *Reply {
	if r.typ != TypeArray || i < 0 || i >= len(r.elements) {
		return nil
	}
	return &r.elements[i]
}

// SetStatus makes the reply a status line.
func (r *Reply) SetStatus(s string) {
	r.Reset()
	r.typ = TypeStatus
	r.payload = []byte(s)
	r.state = stateDone
}

// SetError makes the reply an error line.
func (r *Reply) SetError(msg string) {
	r.Reset()
	r.typ = TypeError
	r.payload = []byte(msg)
	r.state = stateDone
}

// SetInteger makes the reply an integer.
func (r *Reply) SetInteger(v int64) {
	r.Reset()
	r.typ = TypeInteger
	r.integer = v
	r.state = stateDone
}

// SetString makes the reply a bulk string. The payload is copied.
func (r *Reply) SetString(p []byte) {
	r.Reset()
	r.typ = TypeString
	r.payload = append(make([]byte, 0, len(p)), p...)
	r.state = stateDone
}

// SetNil makes the reply a nil bulk string.
func (r *Reply) SetNil() {
	r.Reset()
	r.state = stateDone
}

// SetArray makes the reply an array of n nil elements and returns the
// element slice for the caller to fill in place.
func (r *Reply) SetArray(n int) []Reply {
	r.Reset()
	r.typ = TypeArray
	r.elements = make([]Reply, n)
	r.nparsed = n
	r.state = stateDone
	return r.elements
}

// SerializeTo appends the RESP encoding of the reply to buf.
// Nil replies encode as a nil bulk string.
func (r *Reply) SerializeTo(buf *Buffer) {
	switch r.typ {
	case TypeNil:
		buf.WriteString("$-1\r\n")
	case TypeStatus:
		buf.WriteByte(MarkerStatus)
		buf.Write(r.payload)
		buf.WriteString(CRLF)
	case TypeError:
		buf.WriteByte(MarkerError)
		buf.Write(r.payload)
		buf.WriteString(CRLF)
	case TypeInteger:
		buf.WriteByte(MarkerInteger)
		buf.WriteString(strconv.FormatInt(r.integer, 10))
		buf.WriteString(CRLF)
	case TypeString:
		buf.WriteByte(MarkerBulk)
		buf.WriteString(strconv.Itoa(len(r.payload)))
		buf.WriteString(CRLF)
		buf.Write(r.payload)
		buf.WriteString(CRLF)
	case TypeArray:
		buf.WriteByte(MarkerArray)
		buf.WriteString(strconv.Itoa(len(r.elements)))
		buf.WriteString(CRLF)
		for i := range r.elements {
			r.elements[i].SerializeTo(buf)
		}
	}
}

// String renders the reply for human consumption, in the style of an
// interactive client: "(nil)", "(error) ...", plain text for statuses
// and bulk strings, bracketed lists for arrays.
func (r *Reply) String() string {
	switch r.typ {
	case TypeNil:
		return "(nil)"
	case TypeStatus:
		return string(r.payload)
	case TypeError:
		return "(error) " + string(r.payload)
	case TypeInteger:
		return strconv.FormatInt(r.integer, 10)
	case TypeString:
		return string(r.payload)
	case TypeArray:
		var sb strings.Builder
		sb.WriteByte('[')
		for i := range r.elements {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(r.elements[i].String())
		}
		sb.WriteByte(']')
		return sb.String()
	}
	return "(unknown)"
}

// parseInt parses a decimal int64 without allocating.
func parseInt(b []byte) (int64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	neg := false
	i := 0
	if b[0] == '-' {
		neg = true
		i++
		if len(b) == 1 {
			return 0, false
		}
	}
	var v int64
	for ; i < len(b); i++ {
		c := b[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		d := int64(c - '0')
		if v > (math.MaxInt64-d)/10 {
			return 0, false
		}
		v = v*10 + d
	}
	if neg {
		v = -v
	}
	return v, true
}
