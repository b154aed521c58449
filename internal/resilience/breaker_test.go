package resilience

import (
	"errors"
	"testing"
	"time"
)

var errProvider = errors.New("provider unreachable")

func tripped(b *Breaker, failures int) {
	for range failures {
		_ = b.Execute(func() error { return errProvider })
	}
}

func TestBreaker_ClosedPassesCallsThrough(t *testing.T) {
	b := NewBreaker(3, time.Second)

	ran := false
	if err := b.Execute(func() error { ran = true; return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !ran {
		t.Fatal("fn did not run while closed")
	}
}

func TestBreaker_OpensAtFailureThreshold(t *testing.T) {
	b := NewBreaker(3, time.Second)
	tripped(b, 3)

	err := b.Execute(func() error {
		t.Error("fn ran while open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute err = %v, want ErrCircuitOpen", err)
	}
}

func TestBreaker_ProbesAfterCoolOff(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, 30*time.Second)
	b.now = func() time.Time { return now }
	tripped(b, 2)

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("before cool-off: err = %v, want ErrCircuitOpen", err)
	}

	now = now.Add(31 * time.Second)

	ran := false
	if err := b.Execute(func() error { ran = true; return nil }); err != nil {
		t.Fatalf("probe after cool-off: %v", err)
	}
	if !ran {
		t.Fatal("probe call did not run")
	}

	// Probe success closed the circuit; the next failure alone must not
	// reopen it.
	_ = b.Execute(func() error { return errProvider })
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("after single post-close failure: %v", err)
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, 30*time.Second)
	b.now = func() time.Time { return now }
	tripped(b, 2)

	now = now.Add(31 * time.Second)
	_ = b.Execute(func() error { return errProvider })

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("after failed probe: err = %v, want ErrCircuitOpen", err)
	}
}

func TestBreaker_SuccessResetsConsecutiveCount(t *testing.T) {
	b := NewBreaker(3, time.Second)

	tripped(b, 2)
	_ = b.Execute(func() error { return nil })
	tripped(b, 2)

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("breaker tripped on non-consecutive failures: %v", err)
	}
}
