package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chazu/kosvm/vm"
)

// ErrStopped is returned by Do once the worker has stopped.
var ErrStopped = errors.New("worker stopped")

// request is a unit of work to be executed on the CPU goroutine.
type request struct {
	fn   func(*vm.CPU) any
	done chan result
}

// result holds the return value from a CPU operation.
type result struct {
	value any
	err   error
}

// Worker owns a CPU and serializes all access to it through one goroutine,
// which also ticks the CPU at a fixed rate with the measured elapsed time.
// The CPU is single-threaded; other goroutines must go through Do.
type Worker struct {
	cpu      *vm.CPU
	interval time.Duration
	requests chan request
	stopped  chan struct{}
}

// NewWorker creates a Worker ticking cpu tickRate times per second. Run
// starts it.
func NewWorker(cpu *vm.CPU, tickRate float64) *Worker {
	if tickRate <= 0 {
		tickRate = 50
	}
	return &Worker{
		cpu:      cpu,
		interval: time.Duration(float64(time.Second) / tickRate),
		requests: make(chan request, 64),
		stopped:  make(chan struct{}),
	}
}

// Run ticks the CPU and processes requests until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stopped)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	last := time.Now()
	log.Infof("worker ticking every %s", w.interval)

	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopping")
			return nil
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case now := <-ticker.C:
			delta := now.Sub(last).Seconds()
			last = now
			w.cpu.Tick(delta)
		}
	}
}

// execute runs a function on the CPU, recovering from panics.
func (w *Worker) execute(fn func(*vm.CPU) any) result {
	var res result
	func() {
		defer func() {
			if r := recover(); r != nil {
				res.err = fmt.Errorf("%v", r)
			}
		}()
		res.value = fn(w.cpu)
	}()
	return res
}

// Do submits a function for execution on the CPU goroutine between ticks
// and blocks until it completes. Returns the result and any error
// (including panics).
func (w *Worker) Do(ctx context.Context, fn func(*vm.CPU) any) (any, error) {
	req := request{
		fn:   fn,
		done: make(chan result, 1),
	}
	select {
	case w.requests <- req:
	case <-w.stopped:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-req.done:
		return res.value, res.err
	case <-w.stopped:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Interval returns the time between ticks.
func (w *Worker) Interval() time.Duration {
	return w.interval
}
