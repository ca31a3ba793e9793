package redisproto

import (
	"github.com/zeebo/xxh3"

	"github.com/pior/redisproto/internal"
)

// ServerSelector picks which server handles a given key.
// It receives the key and the current server count and returns an index
// into the server list.
type ServerSelector func(key string, serverCount int) int

// DefaultServerSelector uses Jump Hash over an xxh3 digest of the key.
// Jump Hash provides good distribution and moves few keys when servers
// are added or removed. For a single server it always returns 0.
func DefaultServerSelector(key string, serverCount int) int {
	return internal.JumpHash(xxh3.HashString(key), serverCount)
}

// staticSelector is used in tests to always select a specific server.
func staticSelector(index int) ServerSelector {
	return func(key string, serverCount int) int {
		return index % serverCount
	}
}
