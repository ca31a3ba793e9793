package resp

import "bytes"

// Buffer is a byte queue: writers append at the tail, the parser and
// encoder consume at the head. It is the staging area between socket
// reads and reply parsing, and between command encoding and socket
// writes.
//
// Views returned by Bytes, Peek, Next and CutUntil alias the internal
// storage and stay valid only until the next mutating call.
// The zero value is ready to use.
type Buffer struct {
	data []byte
	off  int
}

// Write appends p to the buffer.
func (b *Buffer) Write(p []byte) {
	b.compact()
	b.data = append(b.data, p...)
}

// WriteString appends s to the buffer.
func (b *Buffer) WriteString(s string) {
	b.compact()
	b.data = append(b.data, s...)
}

// WriteByte appends a single byte to the buffer.
func (b *Buffer) WriteByte(c byte) {
	b.compact()
	b.data = append(b.data, c)
}

// Bytes returns the unread portion of the buffer without consuming it.
func (b *Buffer) Bytes() []byte {
	return b.data[b.off:]
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	return len(b.data) - b.off
}

// IsEmpty reports whether no unread bytes remain.
func (b *Buffer) IsEmpty() bool {
	return b.Len() == 0
}

// Peek returns the first n unread bytes without consuming them.
// ok is false when fewer than n bytes are buffered.
func (b *Buffer) Peek(n int) ([]byte, bool) {
	if b.Len() < n {
		return nil, false
	}
	return b.data[b.off : b.off+n], true
}

// Next consumes and returns the next n unread bytes. When fewer than n
// bytes are buffered it consumes and returns what remains.
func (b *Buffer) Next(n int) []byte {
	if n > b.Len() {
		n = b.Len()
	}
	p := b.data[b.off : b.off+n]
	b.off += n
	return p
}

// Skip consumes n unread bytes, clamped to what is buffered.
func (b *Buffer) Skip(n int) {
	if n > b.Len() {
		n = b.Len()
	}
	b.off += n
}

// CutUntil consumes and returns the bytes before the first occurrence of
// delim, consuming the delimiter as well. It reports false, consuming
// nothing, when delim is absent.
func (b *Buffer) CutUntil(delim []byte) ([]byte, bool) {
	i := bytes.Index(b.Bytes(), delim)
	if i < 0 {
		return nil, false
	}
	p := b.data[b.off : b.off+i]
	b.off += i + len(delim)
	return p, true
}

// Swap exchanges the contents of both buffers.
func (b *Buffer) Swap(other *Buffer) {
	*b, *other = *other, *b
}

// Reset discards all content, keeping the backing storage for reuse.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.off = 0
}

// compact slides unread bytes to the front once the consumed prefix
// dominates the backing array, so long-lived connection buffers do not
// grow without bound. Only called before appends: views handed out by
// the accessors stay valid between mutations.
func (b *Buffer) compact() {
	if b.off == 0 {
		return
	}
	if b.off == len(b.data) {
		b.data = b.data[:0]
		b.off = 0
		return
	}
	if b.off >= len(b.data)/2 {
		n := copy(b.data, b.data[b.off:])
		b.data = b.data[:n]
		b.off = 0
	}
}
