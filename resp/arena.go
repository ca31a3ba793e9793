package resp

import "sync"

// Arena chunk sizing. A chunk holds many small payloads; payloads larger
// than one chunk get a dedicated allocation that bypasses the pool.
const arenaChunkSize = 16 * 1024

// Chunk pool shared by all arenas in the process
var chunkPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, arenaChunkSize)
		return &b
	},
}

// Arena owns the payload storage of one Response. Replies allocate their
// payloads from it and the whole region is released in one operation by
// Reset, instead of freeing replies individually.
//
// Slices handed out by Alloc are only valid until Reset: chunks return
// to a shared pool and are overwritten by later arenas. Copies between
// replies must therefore respect arena boundaries (see
// Reply.CopySameArena and Reply.CopyCrossArena).
//
// The zero value is ready to use.
type Arena struct {
	chunks []*[]byte
}

// Alloc returns a region of n bytes owned by the arena. The content is
// unspecified until written. Requests above MaxBulkLength fail with an
// AllocationError.
func (a *Arena) Alloc(n int) ([]byte, error) {
	if n < 0 || n > MaxBulkLength {
		return nil, &AllocationError{Requested: n, Limit: MaxBulkLength}
	}
	if n == 0 {
		return []byte{}, nil
	}
	if n > arenaChunkSize {
		// Dedicated allocation; not pooled, dropped with the arena.
		return make([]byte, n), nil
	}

	if len(a.chunks) == 0 || cap(*a.tail())-len(*a.tail()) < n {
		a.chunks = append(a.chunks, chunkPool.Get().(*[]byte))
	}

	c := a.tail()
	start := len(*c)
	*c = (*c)[:start+n]
	return (*c)[start : start+n : start+n], nil
}

// Reset releases every chunk back to the pool in one operation.
// All slices previously returned by Alloc become invalid.
func (a *Arena) Reset() {
	for _, c := range a.chunks {
		*c = (*c)[:0]
		chunkPool.Put(c)
	}
	a.chunks = nil
}

func (a *Arena) tail() *[]byte {
	return a.chunks[len(a.chunks)-1]
}
