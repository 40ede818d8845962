package session

import "encoding/json"

// candidateQueue buffers connectivity candidates that arrive before the
// remote description is set. It is a bounded FIFO: candidates are
// applied in arrival order when drained.
type candidateQueue struct {
	items    []json.RawMessage
	capacity int
}

func newCandidateQueue(capacity int) *candidateQueue {
	return &candidateQueue{capacity: capacity}
}

// Push appends a candidate. It reports false when the queue is full, in
// which case the candidate is dropped.
func (q *candidateQueue) Push(candidate json.RawMessage) bool {
	if len(q.items) >= q.capacity {
		return false
	}

	q.items = append(q.items, candidate)
	return true
}

// Drain returns all buffered candidates in arrival order and clears the
// queue.
func (q *candidateQueue) Drain() []json.RawMessage {
	items := q.items
	q.items = nil
	return items
}

func (q *candidateQueue) Reset() {
	q.items = nil
}

func (q *candidateQueue) Len() int {
	return len(q.items)
}
