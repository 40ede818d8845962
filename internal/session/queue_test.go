package session

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestCandidateQueueDrainsInArrivalOrder(t *testing.T) {
	q := newCandidateQueue(8)

	for i := 0; i < 3; i++ {
		if !q.Push(json.RawMessage(fmt.Sprintf(`{"candidate":"c%d"}`, i))) {
			t.Fatalf("push %d rejected", i)
		}
	}

	drained := q.Drain()
	if len(drained) != 3 {
		t.Fatalf("drained %d candidates, want 3", len(drained))
	}

	for i, c := range drained {
		want := fmt.Sprintf(`{"candidate":"c%d"}`, i)
		if string(c) != want {
			t.Fatalf("drained[%d]=%s, want %s", i, c, want)
		}
	}

	if q.Len() != 0 {
		t.Fatalf("len=%d after drain, want 0", q.Len())
	}
}

func TestCandidateQueueDropsWhenFull(t *testing.T) {
	q := newCandidateQueue(2)

	q.Push(json.RawMessage(`1`))
	q.Push(json.RawMessage(`2`))

	if q.Push(json.RawMessage(`3`)) {
		t.Fatal("push beyond capacity accepted")
	}
	if q.Len() != 2 {
		t.Fatalf("len=%d, want 2", q.Len())
	}
}

func TestCandidateQueueReset(t *testing.T) {
	q := newCandidateQueue(2)

	q.Push(json.RawMessage(`1`))
	q.Reset()

	if q.Len() != 0 {
		t.Fatalf("len=%d after reset, want 0", q.Len())
	}
	if drained := q.Drain(); drained != nil {
		t.Fatalf("drain after reset=%v, want nil", drained)
	}
}
