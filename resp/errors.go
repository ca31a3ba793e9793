package resp

import (
	"errors"
	"fmt"
)

// Error types for wire layer operations.
// These errors help callers determine appropriate error handling strategy,
// particularly regarding connection management (close vs. reuse).

// ErrSelfMerge is returned when a message is merged with itself.
// Merging aliasing instances would corrupt both; this is a programming
// error at the call site, not a recoverable condition.
var ErrSelfMerge = errors.New("resp: cannot merge a message with itself")

// ProtocolError indicates the reply stream violates the RESP grammar.
// The parser position within the stream is lost, so no further reply can
// be read from this connection.
//
// Common causes:
//   - Unknown type marker byte
//   - Non-numeric length or integer field
//   - Bulk payload not terminated by CRLF
//
// Connection handling: CLOSE connection immediately
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Message
}

// ShouldCloseConnection returns true - the stream position is unrecoverable
func (e *ProtocolError) ShouldCloseConnection() bool {
	return true
}

// AllocationError indicates the arena refused an allocation because a
// length prefix exceeded the configured limit. The refused bytes are
// still in flight on the connection, so the stream cannot be resumed.
//
// Connection handling: CLOSE connection immediately
type AllocationError struct {
	Requested int
	Limit     int
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocation of %d exceeds limit of %d", e.Requested, e.Limit)
}

// ShouldCloseConnection returns true - the oversized payload is still in flight
func (e *AllocationError) ShouldCloseConnection() bool {
	return true
}

// FormatError indicates a command could not be encoded to wire format.
// A Request becomes poisoned after the first FormatError: every later
// append returns it and Serialize emits nothing, so the connection never
// sees a partial pipeline.
//
// Common causes:
//   - Empty command
//   - Unbalanced quotes in a command line
//   - Quoted token not followed by a separator
//
// Connection handling: connection unaffected, the request was rejected
// before any byte was written
type FormatError struct {
	Message string
}

func (e *FormatError) Error() string {
	return "command format: " + e.Message
}

// ShouldCloseConnection returns false - nothing reached the wire
func (e *FormatError) ShouldCloseConnection() bool {
	return false
}

// ErrorWithConnectionState is an interface for errors that indicate
// whether the connection should be closed.
// Implemented by all wire layer error types.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection reports whether an error requires closing the
// connection.
//
// Returns true for:
//   - ProtocolError
//   - AllocationError
//   - unknown error types (conservative)
//
// Returns false for:
//   - FormatError
//   - nil
//
// Usage:
//
//	complete, err := rsp.Consume(&buf, total)
//	if err != nil {
//	    if resp.ShouldCloseConnection(err) {
//	        conn.Close()
//	    }
//	    return err
//	}
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}

	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}

	// Unknown error type - be conservative and close connection
	return true
}
