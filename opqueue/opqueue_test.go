package opqueue

import "testing"

func TestEnqueueReportsStartProcessingWhenEmpty(t *testing.T) {
	q := New()
	if start := q.Enqueue(&Operation{Type: TypeAPICall}); !start {
		t.Error("Enqueue on an empty, idle queue should report startProcessing=true")
	}
}

func TestEnqueueDoesNotReportStartProcessingWhenAlreadyQueued(t *testing.T) {
	q := New()
	q.Enqueue(&Operation{Type: TypeAPICall})
	if start := q.Enqueue(&Operation{Type: TypeTimerExpired}); start {
		t.Error("Enqueue on a non-empty queue should report startProcessing=false")
	}
}

func TestDequeueReturnsFIFOOrder(t *testing.T) {
	q := New()
	q.Enqueue(&Operation{Type: TypeAPICall})
	q.Enqueue(&Operation{Type: TypeTimerExpired})

	first, ok := q.Dequeue()
	if !ok || first.Type != TypeAPICall {
		t.Fatalf("first Dequeue = (%v, %v), want (TypeAPICall, true)", first, ok)
	}
	second, ok := q.Dequeue()
	if !ok || second.Type != TypeTimerExpired {
		t.Fatalf("second Dequeue = (%v, %v), want (TypeTimerExpired, true)", second, ok)
	}
}

func TestDequeueOnEmptyQueueReturnsFalse(t *testing.T) {
	q := New()
	if _, ok := q.Dequeue(); ok {
		t.Error("Dequeue on an empty queue should return ok=false")
	}
}

func TestEnqueueFrontJumpsTheLine(t *testing.T) {
	q := New()
	q.Enqueue(&Operation{Type: TypeFlushSend})
	q.EnqueueFront(&Operation{Type: TypeAPICall})

	first, _ := q.Dequeue()
	if first.Type != TypeAPICall {
		t.Errorf("first Dequeue = %v, want TypeAPICall (enqueued at the front)", first.Type)
	}
}

func TestDequeueMarksActivelyProcessingUntilDrained(t *testing.T) {
	q := New()
	q.Enqueue(&Operation{Type: TypeAPICall})
	q.Dequeue()
	// The queue is now empty but was actively processing; a new Enqueue
	// should report startProcessing=false since the worker hasn't yet
	// observed the empty queue via a failed Dequeue.
	if start := q.Enqueue(&Operation{Type: TypeTimerExpired}); start {
		t.Error("Enqueue immediately after a successful Dequeue should not report startProcessing=true")
	}
}

func TestClearEmptiesQueueAndReturnsPending(t *testing.T) {
	q := New()
	q.Enqueue(&Operation{Type: TypeAPICall})
	q.Enqueue(&Operation{Type: TypeTimerExpired})
	pending := q.Clear()
	if len(pending) != 2 {
		t.Fatalf("len(Clear()) = %d, want 2", len(pending))
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after Clear", q.Len())
	}
}

func TestTypeStringNamesAreDistinct(t *testing.T) {
	types := []Type{
		TypeAPICall, TypeTimerExpired, TypeReceivedPacket, TypeFlushSend,
		TypeFlushStreamRecv, TypeVersionNegotiation, TypeStatelessReset, TypeRetry,
	}
	seen := map[string]bool{}
	for _, typ := range types {
		name := typ.String()
		if name == "unknown" {
			t.Errorf("Type(%d).String() = %q, want a concrete name", typ, name)
		}
		if seen[name] {
			t.Errorf("Type name %q is not unique", name)
		}
		seen[name] = true
	}
}
