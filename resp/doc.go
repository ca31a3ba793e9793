// Package resp implements the Redis serialization protocol (RESP) wire
// layer: command encoding, pipelined request accumulation, and
// incremental reply parsing.
//
// This package serves as a foundation for building clients and servers
// with different properties (pipelining, connection pooling, dispatch).
// It focuses on correctness and allocation behavior for serialization
// and parsing, without imposing architectural decisions on callers.
//
// # Core Types
//
//   - Request: accumulates RESP-encoded commands for pipelined writes
//   - Response: incrementally parses a stream of replies out of a Buffer
//   - Reply: one parsed RESP value (status, error, integer, bulk, array)
//   - Buffer: a byte queue staging socket reads and wire writes
//   - Arena: chunked storage owning every payload of one Response
//
// # Building Requests
//
// Commands append to a Request and serialize as one write:
//
//	var req resp.Request
//	req.AppendArgs([]byte("SET"), []byte("k"), []byte("v"))
//	req.AppendArgs([]byte("GET"), []byte("k"))
//	wire, err := req.Serialize()
//
// The first append failure poisons the request: later appends return the
// stored error and Serialize refuses to emit anything, so a malformed
// command can never reach the wire as part of a partial pipeline.
//
// # Parsing Responses
//
// Socket bytes are staged into a Buffer and handed to Consume until it
// reports completion; arriving fragments may split replies at any byte:
//
//	var buf resp.Buffer
//	var rsp resp.Response
//	for {
//		buf.Write(readFromSocket())
//		complete, err := rsp.Consume(&buf, req.CommandCount())
//		if err != nil {
//			// protocol violation or allocation failure: close the connection
//		}
//		if complete {
//			break
//		}
//		// need more data: read again
//	}
//
// Replies index uniformly from 0 to ReplyCount()-1. All payload bytes
// live in the Response's arena and are released together by Reset.
//
// # Error Handling
//
// The package defines error types that indicate connection state:
//
//   - ProtocolError: reply stream violates the grammar, CLOSE connection
//   - AllocationError: arena refused an allocation, CLOSE connection
//   - FormatError: command could not be encoded, connection unaffected
//
// Use ShouldCloseConnection to determine error handling strategy. The
// need-more-data condition is not an error: Consume returns (false, nil)
// and the caller re-invokes once more bytes are available.
//
// # Thread Safety
//
// Request, Response and Buffer are not thread-safe. Each instance is
// exclusively owned by one in-flight call or connection; callers that
// share instances across goroutines must synchronize access.
package resp
