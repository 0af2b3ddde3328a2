package arbiter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/buckleypaul/benchlab/internal/board"
)

func TestTryAcquireRejectsSecondOperation(t *testing.T) {
	a := New([]string{"Board_1"})

	release, err := a.TryAcquire("Board_1", Compiling)
	if err != nil {
		t.Fatalf("first TryAcquire: %v", err)
	}

	_, err = a.TryAcquire("Board_1", Uploading)
	if !errors.Is(err, ErrBoardBusy) {
		t.Fatalf("expected ErrBoardBusy, got %v", err)
	}
	var busy *BusyError
	if !errors.As(err, &busy) || busy.State != Compiling {
		t.Fatalf("expected BusyError in compiling state, got %#v", err)
	}

	release()
	release() // idempotent

	if st, _ := a.State("Board_1"); st != Idle {
		t.Fatalf("expected idle after release, got %s", st)
	}
	release2, err := a.TryAcquire("Board_1", Monitoring)
	if err != nil {
		t.Fatalf("TryAcquire after release: %v", err)
	}
	release2()
}

func TestUnknownBoard(t *testing.T) {
	a := New([]string{"Board_1"})
	if _, err := a.TryAcquire("Board_2", Compiling); !errors.Is(err, board.ErrUnknownBoard) {
		t.Fatalf("expected ErrUnknownBoard, got %v", err)
	}
	if _, err := a.State("Board_2"); !errors.Is(err, board.ErrUnknownBoard) {
		t.Fatalf("expected ErrUnknownBoard, got %v", err)
	}
}

func TestAcquireIdleIsRejected(t *testing.T) {
	a := New([]string{"Board_1"})
	if _, err := a.TryAcquire("Board_1", Idle); err == nil {
		t.Fatal("expected error acquiring for idle")
	}
}

func TestConcurrentRequestsOnlyOneProceeds(t *testing.T) {
	a := New([]string{"Board_1"})

	var inFlight, maxInFlight, ok, busy atomic.Int32
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			release, err := a.TryAcquire("Board_1", Uploading)
			if err != nil {
				if errors.Is(err, ErrBoardBusy) {
					busy.Add(1)
				}
				return
			}
			ok.Add(1)
			n := inFlight.Add(1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
			release()
		}()
	}
	close(start)
	wg.Wait()

	if maxInFlight.Load() != 1 {
		t.Fatalf("expected at most one in flight, saw %d", maxInFlight.Load())
	}
	if ok.Load()+busy.Load() != 16 {
		t.Fatalf("every request must either proceed or be busy: ok=%d busy=%d", ok.Load(), busy.Load())
	}
	if ok.Load() < 1 {
		t.Fatal("expected at least one request to proceed")
	}
}

func TestAcquireWaitsForRelease(t *testing.T) {
	a := New([]string{"Board_1"})
	release, err := a.TryAcquire("Board_1", Compiling)
	if err != nil {
		t.Fatal(err)
	}

	got := make(chan error, 1)
	go func() {
		r, err := a.Acquire(context.Background(), "Board_1", Uploading)
		if err == nil {
			defer r()
		}
		got <- err
	}()

	select {
	case <-got:
		t.Fatal("Acquire returned while the board was held")
	case <-time.After(30 * time.Millisecond):
	}

	release()
	select {
	case err := <-got:
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after release")
	}
}

func TestAcquireHonoursContext(t *testing.T) {
	a := New([]string{"Board_1"})
	release, _ := a.TryAcquire("Board_1", Monitoring)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := a.Acquire(ctx, "Board_1", Uploading); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDistinctBoardsAreIndependent(t *testing.T) {
	a := New([]string{"Board_1", "Board_2"})
	r1, err := a.TryAcquire("Board_1", Monitoring)
	if err != nil {
		t.Fatal(err)
	}
	defer r1()

	r2, err := a.TryAcquire("Board_2", Compiling)
	if err != nil {
		t.Fatalf("Board_2 should be free while Board_1 is busy: %v", err)
	}
	defer r2()

	snap := a.Snapshot()
	if snap["Board_1"] != Monitoring || snap["Board_2"] != Compiling {
		t.Fatalf("unexpected snapshot %v", snap)
	}
}

func TestObserverSeesTransitions(t *testing.T) {
	var mu sync.Mutex
	var seen []State
	a := New([]string{"Board_1"}, WithObserver(func(id string, s State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	}))

	release, _ := a.TryAcquire("Board_1", Compiling)
	release()

	mu.Lock()
	defer mu.Unlock()
	want := []State{Idle, Compiling, Idle}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", seen, want)
		}
	}
}
