package redisproto

import "errors"

// ErrConnContextClosed is returned when a session is installed on a
// closed ConnContext.
var ErrConnContextClosed = errors.New("redisproto: connection context closed")

// Session is an opaque per-connection resource owned by a ConnContext,
// like an authentication state or an in-progress transaction. The
// context guarantees Close is called exactly once per installed
// session.
type Session interface {
	Close() error
}

// SessionHandler is a session that also handles commands. While one is
// installed, the server routes every command of the connection to it
// instead of the command table. This is how a transaction handler takes
// over a connection.
type SessionHandler interface {
	Session
	Handler
}

// ConnContext is the per-connection server state. It is owned by the
// connection's goroutine and is not synchronized.
type ConnContext struct {
	remoteAddr string
	session    Session
	closed     bool
}

func NewConnContext(remoteAddr string) *ConnContext {
	return &ConnContext{remoteAddr: remoteAddr}
}

// RemoteAddr returns the address of the peer.
func (c *ConnContext) RemoteAddr() string {
	return c.remoteAddr
}

// Session returns the installed session, nil if none.
func (c *ConnContext) Session() Session {
	return c.session
}

// ReplaceSession closes any installed session, then installs s. A nil s
// just clears. The returned error comes from closing the previous
// session; s is installed either way.
//
// On a closed context the incoming session is closed immediately so it
// cannot leak, and ErrConnContextClosed is returned.
func (c *ConnContext) ReplaceSession(s Session) error {
	if c.closed {
		if s != nil {
			s.Close()
		}
		return ErrConnContextClosed
	}

	var err error
	if c.session != nil {
		err = c.session.Close()
	}
	c.session = s
	return err
}

// Close closes the installed session, then the context. Only the first
// call does anything.
func (c *ConnContext) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	if c.session == nil {
		return nil
	}
	session := c.session
	c.session = nil
	return session.Close()
}

// SessionHandler returns the installed session when it handles
// commands.
func (c *ConnContext) SessionHandler() (Handler, bool) {
	h, ok := c.session.(SessionHandler)
	return h, ok
}
