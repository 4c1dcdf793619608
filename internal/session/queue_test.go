package session

import (
	"sync"
	"testing"
)

func TestInteractionQueue_FIFOByIterationNumber(t *testing.T) {
	q := NewInteractionQueue("sess_test")

	first := q.Enqueue("hello")
	second := q.Enqueue("world")

	if first.ID != "sess_test-turn-1" {
		t.Errorf("Expected id sess_test-turn-1, got %s", first.ID)
	}
	if second.Seq != 2 {
		t.Errorf("Expected seq 2, got %d", second.Seq)
	}

	claimed, ok := q.Claim()
	if !ok || claimed.ID != first.ID {
		t.Fatalf("Expected to claim first interaction, got %v ok=%v", claimed, ok)
	}

	// The lowest uncompleted id is running; nothing else is claimable.
	if _, ok := q.Claim(); ok {
		t.Error("Expected claim to fail while first interaction is running")
	}

	q.Complete(first.ID)
	claimed, ok = q.Claim()
	if !ok || claimed.ID != second.ID {
		t.Fatalf("Expected to claim second interaction after first completed, got %v ok=%v", claimed, ok)
	}
}

func TestInteractionQueue_ClaimEmpty(t *testing.T) {
	q := NewInteractionQueue("sess_test")
	if _, ok := q.Claim(); ok {
		t.Error("Expected claim on empty queue to fail")
	}
}

func TestInteractionQueue_ClaimExactlyOnce(t *testing.T) {
	q := NewInteractionQueue("sess_test")
	q.Enqueue("contested")

	const workers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	claims := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := q.Claim(); ok {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if claims != 1 {
		t.Errorf("Expected exactly one successful claim, got %d", claims)
	}
}

func TestInteractionQueue_Pending(t *testing.T) {
	q := NewInteractionQueue("sess_test")
	a := q.Enqueue("a")
	q.Enqueue("b")

	if q.Pending() != 2 {
		t.Errorf("Expected 2 pending, got %d", q.Pending())
	}

	q.Claim()
	if q.Pending() != 2 {
		t.Errorf("Running interactions still count as pending, got %d", q.Pending())
	}

	q.Complete(a.ID)
	if q.Pending() != 1 {
		t.Errorf("Expected 1 pending after completion, got %d", q.Pending())
	}
}

func TestInteractionQueue_CompleteUnknownID(t *testing.T) {
	q := NewInteractionQueue("sess_test")
	q.Enqueue("a")
	q.Complete("sess_test-turn-99") // no-op
	if q.Pending() != 1 {
		t.Errorf("Expected unknown completion to be a no-op, pending=%d", q.Pending())
	}
}
