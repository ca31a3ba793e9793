package redisproto

import "errors"

// ErrNoServers is returned when the server list is empty.
var ErrNoServers = errors.New("redisproto: no servers available")

// Servers provides the current list of server addresses.
// Implementations may be dynamic (service discovery); the client asks
// for the list on every selection.
type Servers interface {
	List() []string
}

// StaticServers is a fixed list of server addresses.
type StaticServers []string

// NewStaticServers creates a static server list from addresses.
func NewStaticServers(addresses ...string) StaticServers {
	return StaticServers(addresses)
}

func (s StaticServers) List() []string {
	return s
}
