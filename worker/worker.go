package worker

import (
	"sync"
	"time"

	"github.com/m-lab/quic-core/connection"
	"github.com/m-lab/quic-core/metrics"
	"github.com/m-lab/quic-core/opqueue"
)

// ProcessFunc dispatches one dequeued Operation against the connection it
// belongs to. The worker calls it from its single draining goroutine, so
// it never runs concurrently for the same connection — the invariant
// operation.c's design comment relies on.
type ProcessFunc func(conn *connection.Connection, op *opqueue.Operation)

// TimerFunc dispatches one fired connection timer, re-arming it in
// connection's own Wheel if the underlying condition still applies.
type TimerFunc func(conn *connection.Connection, timer connection.TimerType, now time.Time)

// Worker drains the operation queues of every connection assigned to it
// and fires due timers from its MultiTimerWheel, grounded on
// original_source/src/core/worker.h's QUIC_WORKER: one goroutine, many
// connections, woken either by a new operation or an expiring timer.
type Worker struct {
	Process ProcessFunc
	OnTimer TimerFunc

	timers *MultiTimerWheel

	mu          sync.Mutex
	connections map[*connection.Connection]*opqueue.Queue
	ready       []*connection.Connection
	queueDelay  time.Duration

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// New returns a Worker that is not yet running; call Run in its own
// goroutine to start draining.
func New(process ProcessFunc, onTimer TimerFunc) *Worker {
	return &Worker{
		Process:     process,
		OnTimer:     onTimer,
		timers:      NewMultiTimerWheel(),
		connections: make(map[*connection.Connection]*opqueue.Queue),
		wake:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Timers exposes the worker's MultiTimerWheel so a caller can Schedule or
// Cancel a connection's timers directly.
func (w *Worker) Timers() *MultiTimerWheel {
	return w.timers
}

// Assign registers conn with this worker, giving it its own operation
// queue. It is a no-op if conn is already assigned.
func (w *Worker) Assign(conn *connection.Connection) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.connections[conn]; ok {
		return
	}
	w.connections[conn] = opqueue.New()
}

// Unassign removes conn from this worker, clearing its queue and
// canceling every timer it still had armed.
func (w *Worker) Unassign(conn *connection.Connection) {
	w.mu.Lock()
	q := w.connections[conn]
	delete(w.connections, conn)
	w.mu.Unlock()
	if q != nil {
		q.Clear()
	}
	w.timers.CancelConnection(conn)
}

// Load returns the number of connections currently assigned to this
// worker, the metric QuicWorkerPoolGetLeastLoadedWorker balances across
// workers.
func (w *Worker) Load() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.connections)
}

// QueueOperation enqueues op for conn, assigning conn to this worker
// first if it is not already, and wakes the worker loop if the queue was
// idle.
func (w *Worker) QueueOperation(conn *connection.Connection, op *opqueue.Operation) {
	op.QueuedAt = time.Now()

	w.mu.Lock()
	q, ok := w.connections[conn]
	if !ok {
		q = opqueue.New()
		w.connections[conn] = q
	}
	depth := q.Len()
	w.mu.Unlock()

	metrics.WorkerQueueDepthHistogram.Observe(float64(depth))

	if q.Enqueue(op) {
		w.mu.Lock()
		w.ready = append(w.ready, conn)
		w.mu.Unlock()
		w.signal()
	}
}

// QueueOperationFront is QueueOperation for work that must be handled
// ahead of anything already queued for conn.
func (w *Worker) QueueOperationFront(conn *connection.Connection, op *opqueue.Operation) {
	op.QueuedAt = time.Now()

	w.mu.Lock()
	q, ok := w.connections[conn]
	if !ok {
		q = opqueue.New()
		w.connections[conn] = q
	}
	w.mu.Unlock()

	if q.EnqueueFront(op) {
		w.mu.Lock()
		w.ready = append(w.ready, conn)
		w.mu.Unlock()
		w.signal()
	}
}

func (w *Worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// AverageQueueDelay returns an exponentially-weighted moving average of
// how long operations sit queued before Dequeue picks them up.
func (w *Worker) AverageQueueDelay() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queueDelay
}

func (w *Worker) recordQueueDelay(d time.Duration) {
	w.mu.Lock()
	if w.queueDelay == 0 {
		w.queueDelay = d
	} else {
		w.queueDelay = (w.queueDelay*7 + d) / 8
	}
	w.mu.Unlock()
}

// Run drains ready connections and fires expired timers until Stop is
// called. It is meant to run in its own goroutine.
func (w *Worker) Run() {
	defer close(w.done)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		w.armWakeTimer(timer)
		select {
		case <-w.stop:
			return
		case <-w.wake:
		case <-timer.C:
		}
		w.drainReady()
		w.fireExpiredTimers(time.Now())
	}
}

func (w *Worker) armWakeTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	if deadline, ok := w.timers.NextDeadline(); ok {
		d := time.Until(deadline)
		if d < 0 {
			d = 0
		}
		timer.Reset(d)
		return
	}
	timer.Reset(time.Hour)
}

func (w *Worker) drainReady() {
	w.mu.Lock()
	ready := w.ready
	w.ready = nil
	w.mu.Unlock()

	for _, conn := range ready {
		w.mu.Lock()
		q := w.connections[conn]
		w.mu.Unlock()
		if q == nil {
			continue
		}
		for {
			op, ok := q.Dequeue()
			if !ok {
				break
			}
			w.recordQueueDelay(time.Since(op.QueuedAt))
			start := time.Now()
			if w.Process != nil {
				w.Process(conn, op)
			}
			metrics.OperationProcessingTimeHistogram.WithLabelValues(op.Type.String()).Observe(time.Since(start).Seconds())
		}
	}
}

func (w *Worker) fireExpiredTimers(now time.Time) {
	for _, f := range w.timers.Expired(now) {
		if w.OnTimer != nil {
			w.OnTimer(f.Conn, f.Timer, now)
		}
	}
}

// Stop signals the worker loop to exit and blocks until it has.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}
