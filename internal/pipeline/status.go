package pipeline

import (
	"sync"
	"time"
)

// Status is the coarse state of the pipeline, reported to observers whenever
// the controller moves between stages.
type Status int

const (
	// StatusIdle means no run has been started yet.
	StatusIdle Status = iota
	// StatusListening means the run is waiting for a complete speech segment.
	StatusListening
	// StatusProcessing means a segment is being transcribed.
	StatusProcessing
	// StatusSpeaking means a transcript is being synthesised and queued.
	StatusSpeaking
	// StatusStopped means the run has ended.
	StatusStopped
)

var statusNames = [...]string{
	StatusIdle:       "idle",
	StatusListening:  "listening",
	StatusProcessing: "processing",
	StatusSpeaking:   "speaking",
	StatusStopped:    "stopped",
}

// String returns the lowercase status name.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// MarshalText encodes the status as its name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event is a single status transition.
type Event struct {
	Status Status    `json:"status"`
	RunID  string    `json:"run_id,omitempty"`
	Time   time.Time `json:"time"`
}

// DefaultSubscriberBuffer is the channel capacity used by Subscribe when a
// non-positive size is requested.
const DefaultSubscriberBuffer = 16

// broadcaster fans events out to subscribers. Publishing never blocks: a
// full subscriber channel loses its oldest event.
type broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
	last Event
}

func (b *broadcaster) subscribe(size int) (<-chan Event, func()) {
	if size <= 0 {
		size = DefaultSubscriberBuffer
	}
	ch := make(chan Event, size)

	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[int]chan Event)
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = ev
	for _, ch := range b.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		// Full: drop the oldest event and retry once.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *broadcaster) current() Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}
