package git

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_BoundsConcurrentRuns(t *testing.T) {
	const limit = 2
	pool := NewPool(limit)

	var inFlight, highWater atomic.Int32
	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Run(context.Background(), func() error {
				cur := inFlight.Add(1)
				defer inFlight.Add(-1)
				for {
					old := highWater.Load()
					if cur <= old || highWater.CompareAndSwap(old, cur) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				return nil
			})
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		}()
	}
	wg.Wait()

	if hw := highWater.Load(); hw > limit {
		t.Errorf("high-water concurrency = %d, want <= %d", hw, limit)
	}
}

func TestPool_CancelledContextSkipsFn(t *testing.T) {
	pool := NewPool(1)

	// Occupy the only slot so the second Run has to wait.
	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = pool.Run(context.Background(), func() error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pool.Run(ctx, func() error {
		t.Error("fn ran despite cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run err = %v, want context.Canceled", err)
	}
}

func TestPool_NilPoolRunsDirectly(t *testing.T) {
	var pool *Pool
	ran := false
	if err := pool.Run(context.Background(), func() error { ran = true; return nil }); err != nil {
		t.Fatalf("Run on nil pool: %v", err)
	}
	if !ran {
		t.Fatal("fn did not run on nil pool")
	}
}

func TestPool_ZeroLimitClampsToOne(t *testing.T) {
	pool := NewPool(0)
	if err := pool.Run(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("Run with clamped limit: %v", err)
	}
}
