package resp

// protocolName is the type-identity reported by both message types.
const protocolName = "redis"

// Message is the capability set a transport needs to handle protocol
// messages generically, without protocol-specific branches: lifecycle
// (Reset), size accounting (ByteSize), emptiness (IsInitialized) and
// type identity (ProtocolName). Merge and Swap stay concretely typed on
// Request and Response since they are only meaningful between messages
// of the same type.
type Message interface {
	Reset()
	ByteSize() int
	IsInitialized() bool
	ProtocolName() string
}

var (
	_ Message = (*Request)(nil)
	_ Message = (*Response)(nil)
)
