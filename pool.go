package redisproto

import (
	"context"
	"errors"
	"time"
)

var ErrPoolClosed = errors.New("redisproto: pool closed")

// Pool manages the connections of a single server.
// Two implementations are provided: NewChannelPool (the default) and
// NewPuddlePool.
type Pool interface {
	// Acquire returns an idle connection, or creates one when the pool
	// is under its size limit, or blocks until one is released.
	Acquire(ctx context.Context) (Resource, error)

	// AcquireAllIdle removes and returns every currently idle resource.
	// Used by the health check loop.
	AcquireAllIdle() []Resource

	// Stats returns a snapshot of pool statistics.
	Stats() PoolStats

	// Close destroys all connections in the pool.
	Close()
}

// Resource is a pooled connection with its lifecycle controls. The
// holder must finish with exactly one of Release, ReleaseUnused or
// Destroy. The surface matches puddle's resource type so both pool
// implementations share it.
type Resource interface {
	// Value returns the connection held by this resource.
	Value() *Connection

	// Release returns the connection to the pool and refreshes its
	// idle timestamp.
	Release()

	// ReleaseUnused returns the connection without touching the idle
	// timestamp. Used after health checks so checks do not keep stale
	// connections looking fresh.
	ReleaseUnused()

	// Destroy closes the connection and removes it from the pool.
	Destroy()

	// CreationTime returns when the connection was established.
	CreationTime() time.Time

	// IdleDuration returns how long the connection has been idle.
	IdleDuration() time.Duration
}
