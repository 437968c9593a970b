package host

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/chazu/kosvm/vm"
)

func tickUntil(t *testing.T, cpu *vm.CPU, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		cpu.Tick(0.02)
		time.Sleep(time.Millisecond)
	}
}

func startWorker(t *testing.T) (*Worker, context.CancelFunc, chan error) {
	t.Helper()
	cpu := vm.NewCPU(NewConsole(io.Discard), vm.Config{})
	cpu.Boot()
	w := NewWorker(cpu, 200)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(cancel)
	return w, cancel, done
}

func TestWorkerTicks(t *testing.T) {
	w, _, _ := startWorker(t)
	ctx := context.Background()

	deadline := time.Now().Add(5 * time.Second)
	for {
		v, err := w.Do(ctx, func(cpu *vm.CPU) any { return cpu.TickCount() })
		if err != nil {
			t.Fatalf("Do: %v", err)
		}
		if v.(uint64) >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("worker is not ticking")
		}
		time.Sleep(5 * time.Millisecond)
	}

	v, _ := w.Do(ctx, func(cpu *vm.CPU) any { return cpu.SessionTime() })
	if v.(float64) <= 0 {
		t.Errorf("session time = %v", v)
	}
}

func TestWorkerDoRecoversPanics(t *testing.T) {
	w, _, _ := startWorker(t)
	_, err := w.Do(context.Background(), func(*vm.CPU) any { panic("boom") })
	if err == nil || err.Error() != "boom" {
		t.Errorf("Do = %v", err)
	}
	v, err := w.Do(context.Background(), func(cpu *vm.CPU) any { return cpu.ContextCount() })
	if err != nil || v != 1 {
		t.Errorf("worker unusable after a panic: %v, %v", v, err)
	}
}

func TestWorkerStop(t *testing.T) {
	w, cancel, done := startWorker(t)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	if _, err := w.Do(context.Background(), func(*vm.CPU) any { return nil }); !errors.Is(err, ErrStopped) {
		t.Errorf("Do after stop = %v", err)
	}
}

func TestWorkerInterval(t *testing.T) {
	cpu := vm.NewCPU(vm.NopHost{}, vm.Config{})
	if got := NewWorker(cpu, 50).Interval(); got != 20*time.Millisecond {
		t.Errorf("interval = %v", got)
	}
	if got := NewWorker(cpu, 0).Interval(); got != 20*time.Millisecond {
		t.Errorf("default interval = %v", got)
	}
}
