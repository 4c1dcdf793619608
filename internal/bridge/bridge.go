// Package bridge unifies push-style audio/text arrivals into one pull-style
// stream per session. Producers push units from the connection read loop;
// the speech session consumes them as a channel that closes exactly once
// when the bridge is ended.
package bridge

import (
	"sync"
)

// Unit is the tagged union transferred through the bridge: either a chunk
// of audio samples with its rate, or a text submission.
type Unit struct {
	Samples    []float64
	SampleRate int
	Text       string
	IsText     bool
}

// AudioUnit wraps samples as a bridge unit.
func AudioUnit(samples []float64, sampleRate int) Unit {
	return Unit{Samples: samples, SampleRate: sampleRate}
}

// TextUnit wraps a text submission as a bridge unit.
func TextUnit(text string) Unit {
	return Unit{Text: text, IsText: true}
}

// Bridge is a single-producer/single-consumer queue with an explicit end
// signal. Pushing after End is silently dropped to tolerate races between
// producers and session teardown.
type Bridge struct {
	mu      sync.Mutex
	queue   []Unit
	ended   bool
	wake    chan struct{}
	out     chan Unit
	consume sync.Once
}

// New creates an empty bridge.
func New() *Bridge {
	return &Bridge{
		wake: make(chan struct{}, 1),
		out:  make(chan Unit),
	}
}

// Push enqueues a unit. It is a no-op once the bridge has ended.
func (b *Bridge) Push(u Unit) {
	b.mu.Lock()
	if b.ended {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, u)
	b.mu.Unlock()

	b.signal()
}

// End marks that no further units will arrive. Idempotent; wakes any
// waiting consumer with the terminal signal.
func (b *Bridge) End() {
	b.mu.Lock()
	if b.ended {
		b.mu.Unlock()
		return
	}
	b.ended = true
	b.mu.Unlock()

	b.signal()
}

// Ended reports whether End has been called.
func (b *Bridge) Ended() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ended
}

// Consume returns the pull side of the bridge. Units arrive in push order;
// the channel is closed once the queue is drained after End. The channel is
// created on first call and shared by subsequent calls; the sequence is not
// resumable after exhaustion.
func (b *Bridge) Consume() <-chan Unit {
	b.consume.Do(func() {
		go b.pump()
	})
	return b.out
}

func (b *Bridge) pump() {
	defer close(b.out)

	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			u := b.queue[0]
			b.queue = b.queue[1:]
			b.mu.Unlock()
			b.out <- u
			continue
		}
		ended := b.ended
		b.mu.Unlock()

		if ended {
			return
		}
		<-b.wake
	}
}

func (b *Bridge) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}
