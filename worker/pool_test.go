package worker

import (
	"runtime"
	"testing"
	"time"
)

func TestNewPoolDefaultsToGOMAXPROCS(t *testing.T) {
	p := NewPool(0, nil, nil)
	if got, want := len(p.Workers()), runtime.GOMAXPROCS(0); got != want {
		t.Errorf("len(Workers()) = %d, want GOMAXPROCS(0) = %d", got, want)
	}
}

func TestNewPoolHonorsExplicitCount(t *testing.T) {
	p := NewPool(3, nil, nil)
	if got := len(p.Workers()); got != 3 {
		t.Errorf("len(Workers()) = %d, want 3", got)
	}
}

func TestLeastLoadedWorkerPicksFewestConnections(t *testing.T) {
	p := NewPool(2, nil, nil)
	w0, w1 := p.Workers()[0], p.Workers()[1]
	w0.Assign(newTestConn(t))
	w0.Assign(newTestConn(t))

	if got := p.LeastLoadedWorker(); got != w1 {
		t.Error("LeastLoadedWorker should pick the worker with fewer assigned connections")
	}
}

func TestAssignConnectionPicksLeastLoadedAndAssigns(t *testing.T) {
	p := NewPool(2, nil, nil)
	w0 := p.Workers()[0]
	w0.Assign(newTestConn(t))

	c := newTestConn(t)
	got := p.AssignConnection(c)
	if got == w0 {
		t.Error("AssignConnection should have picked the less-loaded worker")
	}
	if got.Load() != 1 {
		t.Errorf("assigned worker Load() = %d, want 1", got.Load())
	}
}

func TestPoolRunAndStop(t *testing.T) {
	p := NewPool(2, nil, nil)
	p.Run()

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Pool.Stop did not return within the timeout")
	}
}
