package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPhaseOrdering(t *testing.T) {
	coord := NewCoordinator()

	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	// Registered out of order on purpose.
	coord.RegisterFunc("stores", record("stores"), PhaseStores)
	coord.RegisterFunc("http", record("http"), PhaseServer)
	coord.RegisterFunc("bus", record("bus"), PhaseBus)

	if err := coord.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	want := []string{"http", "bus", "stores"}
	if len(order) != len(want) {
		t.Fatalf("ran %d handlers, want %d", len(order), len(want))
	}
	for i, name := range want {
		if order[i] != name {
			t.Errorf("order[%d] = %s, want %s", i, order[i], name)
		}
	}
}

func TestSamePhaseRunsConcurrently(t *testing.T) {
	coord := NewCoordinator()

	var running int32
	var peak int32
	handler := func(context.Context) error {
		n := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	}

	coord.RegisterFunc("a", handler, PhaseStores)
	coord.RegisterFunc("b", handler, PhaseStores)

	if err := coord.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if atomic.LoadInt32(&peak) != 2 {
		t.Errorf("peak concurrency = %d, want 2", peak)
	}
}

func TestHandlerFailure(t *testing.T) {
	coord := NewCoordinator()

	var laterRan bool
	coord.RegisterFunc("broken", func(context.Context) error {
		return errors.New("boom")
	}, PhaseServer)
	coord.RegisterFunc("later", func(context.Context) error {
		laterRan = true
		return nil
	}, PhaseStores)

	err := coord.Shutdown(context.Background())
	if !errors.Is(err, ErrHandlerFailed) {
		t.Errorf("Shutdown = %v, want ErrHandlerFailed", err)
	}
	if !laterRan {
		t.Error("failure in an early phase stopped later phases")
	}
}

func TestShutdownOnce(t *testing.T) {
	coord := NewCoordinator()

	var calls int32
	coord.RegisterFunc("counter", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, PhaseServer)

	if err := coord.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := coord.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("handler ran %d times, want 1", calls)
	}
}

func TestTimeout(t *testing.T) {
	coord := NewCoordinator()

	coord.RegisterFunc("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, PhaseServer)
	coord.RegisterFunc("never", func(context.Context) error {
		t.Error("phase after timeout still ran")
		return nil
	}, PhaseStores)

	err := coord.ShutdownWithTimeout(50 * time.Millisecond)
	if err == nil {
		t.Fatal("expected an error from timed-out shutdown")
	}
}

func TestTrigger(t *testing.T) {
	coord := NewCoordinator(WithTimeout(time.Second))

	var ran int32
	coord.RegisterFunc("marker", func(context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	}, PhaseServer)

	coord.HandleSignals()
	coord.Trigger()

	select {
	case <-coord.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete after Trigger")
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Errorf("handler ran %d times, want 1", ran)
	}
	if coord.Err() != nil {
		t.Errorf("Err = %v", coord.Err())
	}
}

func TestProgressCallback(t *testing.T) {
	var mu sync.Mutex
	var seen []Result
	coord := NewCoordinator(WithProgress(func(r Result) {
		mu.Lock()
		seen = append(seen, r)
		mu.Unlock()
	}))

	coord.RegisterFunc("a", func(context.Context) error { return nil }, PhaseServer)
	coord.RegisterFunc("b", func(context.Context) error { return errors.New("boom") }, PhaseBus)

	_ = coord.Shutdown(context.Background())

	if len(seen) != 2 {
		t.Fatalf("got %d progress results, want 2", len(seen))
	}
	if seen[0].Name != "a" || seen[0].Err != nil {
		t.Errorf("first result = %+v", seen[0])
	}
	if seen[1].Name != "b" || seen[1].Err == nil {
		t.Errorf("second result = %+v", seen[1])
	}
}
