// Package playback holds synthesised audio between the controller and the
// output device callback.
package playback

import "sync"

// Buffer is a FIFO of mono samples. The controller pushes whole utterances;
// the output callback pulls one sample per output frame. Insertion order is
// preserved. All methods are safe for concurrent use and never block beyond
// a short critical section.
type Buffer struct {
	onUnderrun func(missing int)

	mu   sync.Mutex
	q    []float32
	head int
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithUnderrunHook registers fn, called from Fill with the number of frames
// that had to be zero-filled when the buffer ran dry mid-request. Fill calls
// on an already empty buffer are idle, not under-runs.
func WithUnderrunHook(fn func(missing int)) Option {
	return func(b *Buffer) { b.onUnderrun = fn }
}

// NewBuffer returns an empty Buffer.
func NewBuffer(opts ...Option) *Buffer {
	b := &Buffer{}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Push appends a copy of samples.
func (b *Buffer) Push(samples []float32) {
	if len(samples) == 0 {
		return
	}
	b.mu.Lock()
	b.q = append(b.q, samples...)
	b.mu.Unlock()
}

// Fill writes one queued mono sample per frame into every channel of the
// interleaved out slice. Frames beyond the queued data are set to 0. It
// returns the number of frames taken from the queue.
func (b *Buffer) Fill(out []float32, channels int) int {
	if channels < 1 {
		channels = 1
	}
	frames := len(out) / channels

	b.mu.Lock()
	avail := len(b.q) - b.head
	n := min(frames, avail)
	for i := range n {
		v := b.q[b.head+i]
		for c := range channels {
			out[i*channels+c] = v
		}
	}
	b.head += n
	b.compactLocked()
	b.mu.Unlock()

	clear(out[n*channels:])
	if avail > 0 && n < frames && b.onUnderrun != nil {
		b.onUnderrun(frames - n)
	}
	return n
}

// compactLocked releases consumed samples once they dominate the slice.
func (b *Buffer) compactLocked() {
	if b.head == len(b.q) {
		b.q = b.q[:0]
		b.head = 0
		return
	}
	if b.head > 4096 && b.head > len(b.q)/2 {
		b.q = append(b.q[:0], b.q[b.head:]...)
		b.head = 0
	}
}

// Len returns the number of queued samples.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.q) - b.head
}

// Clear drops all queued samples.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.q = nil
	b.head = 0
	b.mu.Unlock()
}
