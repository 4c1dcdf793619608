package bridge

import (
	"testing"
	"time"
)

func collect(t *testing.T, units <-chan Unit, timeout time.Duration) []Unit {
	t.Helper()
	var out []Unit
	deadline := time.After(timeout)
	for {
		select {
		case u, ok := <-units:
			if !ok {
				return out
			}
			out = append(out, u)
		case <-deadline:
			t.Fatal("timed out waiting for bridge to drain")
		}
	}
}

func TestBridge_PreservesPushOrder(t *testing.T) {
	b := New()
	b.Push(TextUnit("one"))
	b.Push(TextUnit("two"))
	b.Push(TextUnit("three"))
	b.End()

	units := collect(t, b.Consume(), time.Second)
	if len(units) != 3 {
		t.Fatalf("Expected 3 units, got %d", len(units))
	}
	want := []string{"one", "two", "three"}
	for i, w := range want {
		if units[i].Text != w {
			t.Errorf("Unit %d: expected %q, got %q", i, w, units[i].Text)
		}
	}
}

func TestBridge_ClosesAfterEnd(t *testing.T) {
	b := New()
	b.Push(AudioUnit([]float64{0.1}, 16000))
	b.End()

	units := b.Consume()
	if _, ok := <-units; !ok {
		t.Fatal("Expected one unit before close")
	}
	select {
	case _, ok := <-units:
		if ok {
			t.Error("Expected channel closed after drain")
		}
	case <-time.After(time.Second):
		t.Error("Channel did not close after End")
	}
}

func TestBridge_PushAfterEndDropped(t *testing.T) {
	b := New()
	b.Push(TextUnit("kept"))
	b.End()
	b.Push(TextUnit("dropped"))

	units := collect(t, b.Consume(), time.Second)
	if len(units) != 1 || units[0].Text != "kept" {
		t.Errorf("Expected only the pre-End unit, got %v", units)
	}
}

func TestBridge_EndIdempotent(t *testing.T) {
	b := New()
	b.End()
	b.End()

	if !b.Ended() {
		t.Error("Expected Ended true")
	}
	units := collect(t, b.Consume(), time.Second)
	if len(units) != 0 {
		t.Errorf("Expected no units, got %d", len(units))
	}
}

func TestBridge_ConcurrentProducerDrains(t *testing.T) {
	b := New()
	const n = 100

	go func() {
		for i := 0; i < n; i++ {
			b.Push(AudioUnit([]float64{float64(i)}, 16000))
		}
		b.End()
	}()

	units := collect(t, b.Consume(), 2*time.Second)
	if len(units) != n {
		t.Fatalf("Expected %d units, got %d", n, len(units))
	}
	for i, u := range units {
		if u.Samples[0] != float64(i) {
			t.Fatalf("Unit %d out of order: got %f", i, u.Samples[0])
		}
	}
}
