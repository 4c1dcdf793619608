package session

import (
	"fmt"
	"sort"
	"sync"
)

// Interaction lifecycle states. Each interaction moves queued → running →
// completed exactly once, via an atomic claim.
type InteractionState int

const (
	InteractionQueued InteractionState = iota
	InteractionRunning
	InteractionCompleted
)

// Interaction is one detected turn awaiting completion processing.
type Interaction struct {
	ID    string
	Seq   int
	Text  string
	State InteractionState
}

// InteractionQueue serializes detected turns so exactly one is in flight to
// the completion service at a time, in the order their ids were assigned.
// The ordering key is the numeric iteration suffix, not arrival time, so
// out-of-order claim attempts still resolve to the lowest uncompleted id.
type InteractionQueue struct {
	sessionID string

	mu      sync.Mutex
	nextSeq int
	table   map[int]*Interaction
}

// NewInteractionQueue creates an empty queue scoped to one session.
func NewInteractionQueue(sessionID string) *InteractionQueue {
	return &InteractionQueue{
		sessionID: sessionID,
		table:     make(map[int]*Interaction),
	}
}

// Enqueue registers a new turn and returns its interaction.
func (q *InteractionQueue) Enqueue(text string) *Interaction {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextSeq++
	in := &Interaction{
		ID:    fmt.Sprintf("%s-turn-%d", q.sessionID, q.nextSeq),
		Seq:   q.nextSeq,
		Text:  text,
		State: InteractionQueued,
	}
	q.table[in.Seq] = in
	return in
}

// Claim attempts to atomically transition the lowest uncompleted queued
// interaction to running. Reports ok=false when nothing is claimable: the
// queue is empty, or the next uncompleted interaction is already running.
func (q *InteractionQueue) Claim() (*Interaction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	seqs := make([]int, 0, len(q.table))
	for seq, in := range q.table {
		if in.State != InteractionCompleted {
			seqs = append(seqs, seq)
		}
	}
	if len(seqs) == 0 {
		return nil, false
	}
	sort.Ints(seqs)

	next := q.table[seqs[0]]
	if next.State != InteractionQueued {
		// The lowest uncompleted id is already running; nothing to do yet.
		return nil, false
	}
	next.State = InteractionRunning
	return next, true
}

// Complete marks an interaction completed after its completion-service
// round trip (and any synthesis) finished.
func (q *InteractionQueue) Complete(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, in := range q.table {
		if in.ID == id {
			in.State = InteractionCompleted
			return
		}
	}
}

// Pending returns the number of interactions not yet completed.
func (q *InteractionQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, in := range q.table {
		if in.State != InteractionCompleted {
			n++
		}
	}
	return n
}
