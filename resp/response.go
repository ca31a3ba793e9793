package resp

import (
	"fmt"
	"strings"
)

// Response collects the pipelined replies to one Request. It owns an
// arena holding every reply payload and parses incrementally: the
// transport stages socket bytes into a Buffer and calls Consume until
// the expected number of replies is complete.
//
// Replies are stored as one arena-backed sequence indexed 0 to
// ReplyCount()-1.
//
// The zero value is an empty response ready to consume.
type Response struct {
	arena     Arena
	replies   []Reply
	nparsed   int
	expected  int // fixed by the first Consume call, 0 until then
	byteTotal int
}

// Consume parses replies from buf until expectedTotal replies are
// complete or buf runs out.
//
// It returns (true, nil) once all expected replies are parsed,
// (false, nil) when buf was exhausted mid-stream (call again once more
// bytes arrive), and (false, err) on a protocol violation or allocation
// failure, both fatal to the owning connection.
//
// Parsing is monotonic and resumable: bytes removed from buf are never
// restored, replies completed by an earlier call are never reparsed, and
// a call picks up exactly where the previous one stopped, even inside a
// single reply. expectedTotal must be at least 1 and must not change
// across calls on the same instance.
func (r *Response) Consume(buf *Buffer, expectedTotal int) (bool, error) {
	if expectedTotal < 1 {
		return false, &ProtocolError{Message: fmt.Sprintf("invalid expected reply count %d", expectedTotal)}
	}
	if r.expected == 0 {
		r.expected = expectedTotal
		r.replies = make([]Reply, expectedTotal)
	} else if r.expected != expectedTotal {
		return false, &ProtocolError{Message: fmt.Sprintf("expected reply count changed from %d to %d", r.expected, expectedTotal)}
	}

	// Account every byte removed from buf, including bytes of replies
	// that do not complete during this call.
	start := buf.Len()
	defer func() {
		r.byteTotal += start - buf.Len()
	}()

	for r.nparsed < r.expected {
		done, err := r.replies[r.nparsed].Consume(buf, &r.arena)
		if err != nil {
			return false, err
		}
		if !done {
			return false, nil
		}
		r.nparsed++
	}
	return true, nil
}

// Merge appends deep copies of other's replies after r's own. Both
// responses should be fully collected: merging into a response with a
// reply still in flight discards that reply's progress.
//
// r's existing replies move by cheap same-arena copies; other's replies
// are copied across arenas, so r stays fully self-contained and other
// can be reset or dropped afterwards. A merge with itself is rejected as
// a programming error.
func (r *Response) Merge(other *Response) error {
	if r == other {
		return ErrSelfMerge
	}
	if other.nparsed == 0 {
		return nil
	}

	merged := make([]Reply, r.nparsed+other.nparsed)
	for i := 0; i < r.nparsed; i++ {
		merged[i].CopySameArena(&r.replies[i])
	}
	for i := 0; i < other.nparsed; i++ {
		if err := merged[r.nparsed+i].CopyCrossArena(&other.replies[i], &r.arena); err != nil {
			return err
		}
	}

	r.replies = merged
	r.nparsed += other.nparsed
	r.expected = r.nparsed
	r.byteTotal += other.byteTotal
	return nil
}

// Swap exchanges the full state of both responses: replies, arena,
// counts and byte totals move together, so reply storage never separates
// from the arena that owns it.
func (r *Response) Swap(other *Response) {
	*r, *other = *other, *r
}

// Reset releases the whole arena in one operation and empties the
// response. Every Reply previously returned becomes invalid.
func (r *Response) Reset() {
	r.arena.Reset()
	r.replies = nil
	r.nparsed = 0
	r.expected = 0
	r.byteTotal = 0
}

// ReplyCount returns the number of complete replies.
func (r *Response) ReplyCount() int {
	return r.nparsed
}

// Reply returns the i-th complete reply, nil when out of range. The
// reply is owned by the response and dies with it.
func (r *Response) Reply(i int) *Reply {
	if i < 0 || i >= r.nparsed {
		return nil
	}
	return &r.replies[i]
}

// ByteSize returns the total bytes consumed off the wire to parse this
// response, maintained incrementally so no reply tree walk is needed.
func (r *Response) ByteSize() int {
	return r.byteTotal
}

// IsInitialized reports whether at least one reply is complete.
func (r *Response) IsInitialized() bool {
	return r.nparsed > 0
}

// ProtocolName identifies the message for generic transport dispatch.
func (r *Response) ProtocolName() string {
	return protocolName
}

// String renders the response for logs: an empty marker, the single
// reply, or a bracketed list.
func (r *Response) String() string {
	switch r.nparsed {
	case 0:
		return "(empty)"
	case 1:
		return r.replies[0].String()
	}
	var sb strings.Builder
	sb.WriteByte('[')
	for i := 0; i < r.nparsed; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(r.replies[i].String())
	}
	sb.WriteByte(']')
	return sb.String()
}
