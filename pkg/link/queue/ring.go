package queue

// Ring is a fixed-capacity circular byte buffer.
// Writes are all-or-nothing. It is not safe for concurrent use.
type Ring struct {
	buf  []byte
	head int // read position
	size int // bytes stored
}

// NewRing creates a Ring holding up to capacity bytes.
func NewRing(capacity int) *Ring {
	return &Ring{buf: make([]byte, capacity)}
}

// Cap returns the capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of stored bytes.
func (r *Ring) Len() int { return r.size }

// Free returns the number of bytes that can be written.
func (r *Ring) Free() int { return len(r.buf) - r.size }

// Reset drops all stored bytes.
func (r *Ring) Reset() {
	r.head, r.size = 0, 0
}

// Write appends all of p or nothing.
func (r *Ring) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if len(p) > r.Free() {
		return ErrNoSpace
	}
	tail := (r.head + r.size) % len(r.buf)
	n := copy(r.buf[tail:], p)
	copy(r.buf, p[n:])
	r.size += len(p)
	return nil
}

// WriteByte appends a single byte.
func (r *Ring) WriteByte(c byte) error {
	if r.Free() < 1 {
		return ErrNoSpace
	}
	r.buf[(r.head+r.size)%len(r.buf)] = c
	r.size++
	return nil
}

// Peek copies stored bytes starting at offset into p without consuming them.
// It returns the number of bytes copied.
func (r *Ring) Peek(p []byte, offset int) int {
	if offset >= r.size {
		return 0
	}
	want := len(p)
	if avail := r.size - offset; want > avail {
		want = avail
	}
	start := (r.head + offset) % len(r.buf)
	n := copy(p[:want], r.buf[start:])
	if n < want {
		n += copy(p[n:want], r.buf)
	}
	return n
}

// Read copies and consumes up to len(p) bytes.
func (r *Ring) Read(p []byte) int {
	n := r.Peek(p, 0)
	r.Discard(n)
	return n
}

// Discard consumes up to n bytes.
func (r *Ring) Discard(n int) {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return
	}
	r.head = (r.head + n) % len(r.buf)
	r.size -= n
	if r.size == 0 {
		r.head = 0
	}
}
