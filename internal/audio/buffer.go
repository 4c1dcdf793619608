package audio

import (
	"sync"
)

// SampleBuffer is a thread-safe ring buffer of normalized float samples.
// The gateway uses it to hold appended input audio until the client commits
// it when server turn detection is disabled.
type SampleBuffer struct {
	buffer []float64
	size   int
	read   int
	write  int
	mu     sync.RWMutex
}

// NewSampleBuffer creates a ring buffer holding up to size samples.
func NewSampleBuffer(size int) *SampleBuffer {
	return &SampleBuffer{
		buffer: make([]float64, size),
		size:   size,
	}
}

// Write appends samples to the buffer. Returns the number of samples
// written, which may be less than len(samples) if the buffer is full.
func (sb *SampleBuffer) Write(samples []float64) int {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	written := 0
	for i := 0; i < len(samples); i++ {
		if (sb.write+1)%sb.size == sb.read {
			break // buffer full
		}

		sb.buffer[sb.write] = samples[i]
		sb.write = (sb.write + 1) % sb.size
		written++
	}

	return written
}

// Drain removes and returns all buffered samples.
func (sb *SampleBuffer) Drain() []float64 {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	out := make([]float64, 0, sb.lengthLocked())
	for sb.read != sb.write {
		out = append(out, sb.buffer[sb.read])
		sb.read = (sb.read + 1) % sb.size
	}
	return out
}

// Len returns the number of samples available to read.
func (sb *SampleBuffer) Len() int {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return sb.lengthLocked()
}

func (sb *SampleBuffer) lengthLocked() int {
	if sb.write >= sb.read {
		return sb.write - sb.read
	}
	return sb.size - sb.read + sb.write
}

// Clear discards all buffered samples.
func (sb *SampleBuffer) Clear() {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sb.read = 0
	sb.write = 0
}

// IsEmpty returns true if no samples are buffered.
func (sb *SampleBuffer) IsEmpty() bool {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return sb.read == sb.write
}
