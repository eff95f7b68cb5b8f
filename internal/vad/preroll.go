package vad

// PreRoll is a fixed-capacity ring of the most recent input samples. When
// full, pushing evicts the oldest samples. It is not safe for concurrent use;
// Engine guards it with its own mutex.
type PreRoll struct {
	buf   []float32
	start int // index of the oldest sample
	n     int // number of valid samples
}

// NewPreRoll returns a PreRoll holding at most capacity samples.
func NewPreRoll(capacity int) *PreRoll {
	return &PreRoll{buf: make([]float32, max(capacity, 0))}
}

// Cap returns the capacity in samples.
func (r *PreRoll) Cap() int { return len(r.buf) }

// Len returns the number of buffered samples.
func (r *PreRoll) Len() int { return r.n }

// Push appends samples, evicting the oldest ones on overflow.
func (r *PreRoll) Push(samples []float32) {
	c := len(r.buf)
	if c == 0 {
		return
	}
	if len(samples) >= c {
		copy(r.buf, samples[len(samples)-c:])
		r.start, r.n = 0, c
		return
	}
	for _, s := range samples {
		end := (r.start + r.n) % c
		r.buf[end] = s
		if r.n < c {
			r.n++
		} else {
			r.start = (r.start + 1) % c
		}
	}
}

// AppendTo appends the buffered samples, oldest first, to dst and returns
// the extended slice. The ring is left unchanged.
func (r *PreRoll) AppendTo(dst []float32) []float32 {
	c := len(r.buf)
	if r.n == 0 {
		return dst
	}
	end := r.start + r.n
	if end <= c {
		return append(dst, r.buf[r.start:end]...)
	}
	dst = append(dst, r.buf[r.start:]...)
	return append(dst, r.buf[:end-c]...)
}

// Reset empties the ring without releasing its storage.
func (r *PreRoll) Reset() {
	r.start, r.n = 0, 0
}
