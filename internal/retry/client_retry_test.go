package retry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"niftyscalp/internal/logger"
)

func testEntry() *logger.Entry {
	return logger.New().WithComponent("retry_test")
}

func fastConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

// scriptedOp fails with errUntil for the first successAfter-1 calls, then
// succeeds.
type scriptedOp struct {
	callCount    int32
	successAfter int
	errUntil     error
}

func (s *scriptedOp) run(context.Context) error {
	n := atomic.AddInt32(&s.callCount, 1)
	if s.successAfter > 0 && int(n) >= s.successAfter {
		return nil
	}
	return s.errUntil
}

func (s *scriptedOp) calls() int {
	return int(atomic.LoadInt32(&s.callCount))
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	op := &scriptedOp{successAfter: 1}
	r := NewRunner(testEntry(), fastConfig())

	if err := r.Do(context.Background(), "fetch chain", op.run); err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if op.calls() != 1 {
		t.Errorf("operation ran %d times, want 1", op.calls())
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	op := &scriptedOp{successAfter: 3, errUntil: errors.New("connection reset by peer")}
	r := NewRunner(testEntry(), fastConfig())

	if err := r.Do(context.Background(), "fetch chain", op.run); err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if op.calls() != 3 {
		t.Errorf("operation ran %d times, want 3", op.calls())
	}
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	op := &scriptedOp{errUntil: errors.New("invalid instrument key")}
	r := NewRunner(testEntry(), fastConfig())

	err := r.Do(context.Background(), "fetch chain", op.run)
	if err == nil {
		t.Fatal("Do() succeeded on a permanent error")
	}
	if op.calls() != 1 {
		t.Errorf("permanent error retried: %d calls", op.calls())
	}
	if !errors.Is(err, op.errUntil) {
		t.Errorf("Do() error %v does not wrap the cause", err)
	}
}

func TestDo_ExhaustsRetryBudget(t *testing.T) {
	op := &scriptedOp{errUntil: errors.New("gateway timeout")}
	r := NewRunner(testEntry(), fastConfig())

	err := r.Do(context.Background(), "fetch chain", op.run)
	if err == nil {
		t.Fatal("Do() succeeded despite persistent failures")
	}
	if op.calls() != 4 {
		t.Errorf("operation ran %d times, want 4 (initial + 3 retries)", op.calls())
	}
}

func TestDo_ContextCanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	op := &scriptedOp{successAfter: 1}
	r := NewRunner(testEntry(), fastConfig())

	if err := r.Do(ctx, "fetch chain", op.run); err == nil {
		t.Fatal("Do() ignored canceled context")
	}
	if op.calls() != 0 {
		t.Errorf("operation ran %d times on canceled context, want 0", op.calls())
	}
}

func TestDo_ContextCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	op := &scriptedOp{errUntil: errors.New("timeout")}
	r := NewRunner(testEntry(), Config{
		MaxRetries:     5,
		InitialBackoff: time.Hour,
		MaxBackoff:     time.Hour,
	})

	done := make(chan error, 1)
	go func() {
		done <- r.Do(ctx, "fetch chain", op.run)
	}()

	// Give the first attempt time to fail and enter backoff.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil || !errors.Is(err, context.Canceled) {
			t.Errorf("Do() = %v, want context.Canceled wrap", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do() did not return after cancellation")
	}
	if op.calls() != 1 {
		t.Errorf("operation ran %d times, want 1", op.calls())
	}
}

func TestNextBackoff_GrowthAndCap(t *testing.T) {
	r := NewRunner(testEntry(), Config{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     4 * time.Second,
	})

	next := r.nextBackoff(2 * time.Second)
	// 1.5x growth plus up to 25% jitter.
	if next < 3*time.Second || next > 3750*time.Millisecond {
		t.Errorf("nextBackoff(2s) = %v, want within [3s, 3.75s]", next)
	}

	capped := r.nextBackoff(10 * time.Second)
	if capped < 4*time.Second || capped > 5*time.Second {
		t.Errorf("nextBackoff(10s) = %v, want within [4s, 5s]", capped)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("request timeout"), true},
		{errors.New("connection refused"), true},
		{fmt.Errorf("analytics request failed: status 503"), true},
		{fmt.Errorf("analytics request failed: status 429"), true},
		{errors.New("dial tcp: lookup failed"), true},
		{errors.New("invalid access token"), false},
		{errors.New("unknown underlying"), false},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
