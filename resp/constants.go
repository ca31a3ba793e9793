package resp

// ReplyType identifies the variant held by a Reply.
type ReplyType byte

const (
	// TypeNil is a nil bulk string ($-1) or nil array (*-1).
	// It is also the zero value of an unparsed Reply.
	TypeNil ReplyType = iota

	// TypeStatus is a simple status line (+OK).
	TypeStatus

	// TypeError is an error line (-ERR ...).
	TypeError

	// TypeInteger is a signed 64-bit integer (:42).
	TypeInteger

	// TypeString is a bulk string ($5\r\nhello).
	TypeString

	// TypeArray is a multi-bulk array (*2 followed by two replies).
	TypeArray
)

func (t ReplyType) String() string {
	switch t {
	case TypeNil:
		return "nil"
	case TypeStatus:
		return "status"
	case TypeError:
		return "error"
	case TypeInteger:
		return "integer"
	case TypeString:
		return "string"
	case TypeArray:
		return "array"
	}
	return "unknown"
}

// Reply type markers, the first byte of every RESP unit.
const (
	MarkerStatus  byte = '+'
	MarkerError   byte = '-'
	MarkerInteger byte = ':'
	MarkerBulk    byte = '$'
	MarkerArray   byte = '*'
)

// Protocol delimiters
const (
	// CRLF terminates every protocol line
	CRLF = "\r\n"
)

// Protocol limits
const (
	// MaxBulkLength is the largest accepted bulk payload, matching the
	// server-side proto-max-bulk-len default. Larger length prefixes are
	// refused before any allocation happens.
	MaxBulkLength = 512 * 1024 * 1024 // 512 MB

	// MaxArrayLength is the largest accepted multi-bulk element count.
	MaxArrayLength = 1024 * 1024
)

var crlfBytes = []byte(CRLF)
