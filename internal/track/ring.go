package track

// Ring is a fixed-capacity ring buffer. Once full, new values overwrite
// the oldest, so per-track history stays bounded however long a session
// runs.
type Ring[T any] struct {
	buf   []T
	next  int
	count int
}

// NewRing allocates a ring with the given capacity (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends a value, evicting the oldest if the ring is full.
func (r *Ring[T]) Push(v T) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Len reports how many values are currently stored.
func (r *Ring[T]) Len() int {
	return r.count
}

// Cap reports the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Values returns the stored values oldest first.
func (r *Ring[T]) Values() []T {
	out := make([]T, 0, r.count)
	start := r.next - r.count
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}
