// Package worker implements the multi-connection execution unit: a pool
// of goroutines, each draining the per-connection operation queues
// (opqueue.Queue) assigned to it and firing whichever connection timers
// have come due. Grounded on original_source/src/core/worker.h's
// QUIC_WORKER/QUIC_WORKER_POOL and timer_wheel.h's QUIC_TIMER_WHEEL.
package worker

import (
	"container/heap"
	"sync"
	"time"

	"github.com/m-lab/quic-core/connection"
)

// timerTypeCount mirrors connection's unexported numTimerTypes sentinel:
// TimerIdle..TimerAckDelay.
const timerTypeCount = int(connection.TimerAckDelay) + 1

type timerKey struct {
	conn  *connection.Connection
	timer connection.TimerType
}

type timerItem struct {
	deadline time.Time
	conn     *connection.Connection
	timer    connection.TimerType
	index    int
}

type timerHeap []*timerItem

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x interface{}) {
	item := x.(*timerItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// Fired names a connection timer that has reached its deadline.
type Fired struct {
	Conn  *connection.Connection
	Timer connection.TimerType
}

// MultiTimerWheel schedules named timers across every connection a
// worker owns in one min-heap, the genuine multi-connection structure
// timer_wheel.h describes. connection.Wheel deliberately only tracks a
// single connection's own handful of timers; this is the coarser
// structure that owns many connections at once, as timers.go's package
// doc defers to here.
type MultiTimerWheel struct {
	mu    sync.Mutex
	h     timerHeap
	byKey map[timerKey]*timerItem
}

// NewMultiTimerWheel returns an empty MultiTimerWheel.
func NewMultiTimerWheel() *MultiTimerWheel {
	return &MultiTimerWheel{byKey: make(map[timerKey]*timerItem)}
}

// Schedule arms (or re-arms) timer for conn at deadline.
func (w *MultiTimerWheel) Schedule(conn *connection.Connection, timer connection.TimerType, deadline time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := timerKey{conn, timer}
	if item, ok := w.byKey[key]; ok {
		item.deadline = deadline
		heap.Fix(&w.h, item.index)
		return
	}
	item := &timerItem{deadline: deadline, conn: conn, timer: timer}
	heap.Push(&w.h, item)
	w.byKey[key] = item
}

// Cancel disarms a timer, if armed.
func (w *MultiTimerWheel) Cancel(conn *connection.Connection, timer connection.TimerType) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancelLocked(conn, timer)
}

func (w *MultiTimerWheel) cancelLocked(conn *connection.Connection, timer connection.TimerType) {
	key := timerKey{conn, timer}
	item, ok := w.byKey[key]
	if !ok {
		return
	}
	heap.Remove(&w.h, item.index)
	delete(w.byKey, key)
}

// CancelConnection disarms every timer belonging to conn, e.g. once it
// has fully closed and left the worker.
func (w *MultiTimerWheel) CancelConnection(conn *connection.Connection) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for t := 0; t < timerTypeCount; t++ {
		w.cancelLocked(conn, connection.TimerType(t))
	}
}

// NextDeadline returns the earliest armed deadline across every
// connection this wheel tracks, for the worker loop to sleep until.
func (w *MultiTimerWheel) NextDeadline() (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.h) == 0 {
		return time.Time{}, false
	}
	return w.h[0].deadline, true
}

// Expired pops and returns every timer whose deadline is at or before
// now, disarming each one.
func (w *MultiTimerWheel) Expired(now time.Time) []Fired {
	w.mu.Lock()
	defer w.mu.Unlock()
	var fired []Fired
	for len(w.h) > 0 && !now.Before(w.h[0].deadline) {
		item := heap.Pop(&w.h).(*timerItem)
		delete(w.byKey, timerKey{item.conn, item.timer})
		fired = append(fired, Fired{Conn: item.conn, Timer: item.timer})
	}
	return fired
}

// Len returns the number of timers currently armed.
func (w *MultiTimerWheel) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.h)
}
