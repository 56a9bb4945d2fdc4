package buffer

import "golang.org/x/sys/unix"

const (
	prependSize = 8
	initialSize = 1024
	// extraReadSize is the stack-allocated overflow region ReadFD reads
	// into alongside the buffer's own writable space, so one very large
	// read doesn't force the internal buffer to grow to match it.
	extraReadSize = 65536
)

// Buffer is a growable byte queue split into three regions:
// prependable | readable | writable. Append grows the writable region
// from the back; Retrieve consumes the readable region from the front.
// It is not safe for concurrent use — callers own the single-threaded
// discipline (typically a Connection's owning loop).
type Buffer struct {
	buf         []byte
	readerIndex int
	writerIndex int
}

// New returns an empty Buffer with room for prependSize bytes of header
// space ahead of the readable region.
func New() *Buffer {
	return &Buffer{
		buf:         make([]byte, prependSize+initialSize),
		readerIndex: prependSize,
		writerIndex: prependSize,
	}
}

// ReadableBytes returns the number of bytes available to Peek/Retrieve.
func (b *Buffer) ReadableBytes() int { return b.writerIndex - b.readerIndex }

// WritableBytes returns the number of bytes Append can add before the
// buffer must grow.
func (b *Buffer) WritableBytes() int { return len(b.buf) - b.writerIndex }

// PrependableBytes returns the size of the currently unused header
// region ahead of the readable region.
func (b *Buffer) PrependableBytes() int { return b.readerIndex }

// Peek returns the readable region without consuming it. The returned
// slice aliases the buffer's storage and is invalidated by the next
// Append or Retrieve call.
func (b *Buffer) Peek() []byte { return b.buf[b.readerIndex:b.writerIndex] }

// Retrieve consumes up to n bytes from the front of the readable
// region.
func (b *Buffer) Retrieve(n int) {
	if n >= b.ReadableBytes() {
		b.RetrieveAll()
		return
	}
	b.readerIndex += n
}

// RetrieveAll discards the entire readable region.
func (b *Buffer) RetrieveAll() {
	b.readerIndex = prependSize
	b.writerIndex = prependSize
}

// RetrieveAsString consumes up to n bytes from the front of the
// readable region and returns them as a string.
func (b *Buffer) RetrieveAsString(n int) string {
	if n > b.ReadableBytes() {
		n = b.ReadableBytes()
	}
	s := string(b.buf[b.readerIndex : b.readerIndex+n])
	b.Retrieve(n)
	return s
}

// RetrieveAllString drains the entire readable region as a string.
func (b *Buffer) RetrieveAllString() string {
	return b.RetrieveAsString(b.ReadableBytes())
}

// Append copies data onto the back of the writable region, growing the
// buffer first if necessary.
func (b *Buffer) Append(data []byte) {
	b.ensureWritable(len(data))
	copy(b.buf[b.writerIndex:], data)
	b.writerIndex += len(data)
}

// AppendString is Append for a string, avoiding a caller-side []byte(s)
// conversion.
func (b *Buffer) AppendString(s string) {
	b.ensureWritable(len(s))
	copy(b.buf[b.writerIndex:], s)
	b.writerIndex += len(s)
}

func (b *Buffer) ensureWritable(n int) {
	if b.WritableBytes() >= n {
		return
	}
	b.makeSpace(n)
}

// makeSpace either slides the readable region back down to the start of
// the buffer (reclaiming already-consumed prependable space) or, if
// that still wouldn't fit n more bytes, grows the underlying slice.
func (b *Buffer) makeSpace(n int) {
	if b.WritableBytes()+b.PrependableBytes()-prependSize < n {
		newBuf := make([]byte, b.writerIndex+n)
		copy(newBuf, b.buf[:b.writerIndex])
		b.buf = newBuf
		return
	}
	readable := b.ReadableBytes()
	copy(b.buf[prependSize:], b.buf[b.readerIndex:b.writerIndex])
	b.readerIndex = prependSize
	b.writerIndex = b.readerIndex + readable
}

// ReadFD reads once from fd into the buffer's writable region, spilling
// into a stack-allocated overflow region when the read is larger than
// the space currently available, then appending that overflow onto the
// buffer. This bounds the buffer's growth to the size actually needed,
// instead of an arbitrary large read forcing a single huge allocation.
// Returns the number of bytes read (0 meaning the peer has closed its
// end) and any error from the underlying readv. On error n is -1, not
// 0, so callers can distinguish a transient error (EAGAIN and the like)
// from an orderly peer close.
func (b *Buffer) ReadFD(fd int) (int, error) {
	writable := b.buf[b.writerIndex:len(b.buf):len(b.buf)]
	var extra [extraReadSize]byte

	n, err := unix.Readv(fd, [][]byte{writable, extra[:]})
	if err != nil {
		return -1, err
	}

	switch {
	case n <= len(writable):
		b.writerIndex += n
	default:
		b.writerIndex = len(b.buf)
		b.Append(extra[:n-len(writable)])
	}
	return n, nil
}
