package audio

import (
	"testing"
)

func TestSampleBuffer_WriteAndDrain(t *testing.T) {
	sb := NewSampleBuffer(16)

	in := []float64{0.1, 0.2, 0.3}
	if n := sb.Write(in); n != 3 {
		t.Fatalf("Expected 3 samples written, got %d", n)
	}
	if sb.Len() != 3 {
		t.Errorf("Expected Len 3, got %d", sb.Len())
	}

	out := sb.Drain()
	if len(out) != 3 {
		t.Fatalf("Expected 3 samples drained, got %d", len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("Sample %d: expected %f, got %f", i, in[i], out[i])
		}
	}
	if !sb.IsEmpty() {
		t.Error("Expected buffer to be empty after drain")
	}
}

func TestSampleBuffer_Full(t *testing.T) {
	sb := NewSampleBuffer(4) // ring keeps one slot open, so capacity 3

	n := sb.Write([]float64{1, 2, 3, 4, 5})
	if n != 3 {
		t.Errorf("Expected 3 samples written to full buffer, got %d", n)
	}
}

func TestSampleBuffer_Clear(t *testing.T) {
	sb := NewSampleBuffer(16)
	sb.Write([]float64{1, 2, 3})
	sb.Clear()

	if !sb.IsEmpty() {
		t.Error("Expected empty buffer after Clear")
	}
	if out := sb.Drain(); len(out) != 0 {
		t.Errorf("Expected no samples after Clear, got %d", len(out))
	}
}

func TestSampleBuffer_WrapAround(t *testing.T) {
	sb := NewSampleBuffer(4)

	sb.Write([]float64{1, 2})
	sb.Drain()
	sb.Write([]float64{3, 4, 5})

	out := sb.Drain()
	if len(out) != 3 {
		t.Fatalf("Expected 3 samples after wrap, got %d", len(out))
	}
	want := []float64{3, 4, 5}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("Sample %d: expected %f, got %f", i, want[i], out[i])
		}
	}
}
