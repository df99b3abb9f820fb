package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	attempts, err := Do(context.Background(), fastPolicy(3), nil, nil, func(attempt int) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), fastPolicy(5), nil, nil, func(attempt int) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestDo_RespectsAttemptBudget(t *testing.T) {
	calls := 0
	persistent := errors.New("still down")

	attempts, err := Do(context.Background(), fastPolicy(4), nil, nil, func(attempt int) error {
		calls++
		return persistent
	})
	if !errors.Is(err, persistent) {
		t.Fatalf("Expected last error to surface, got %v", err)
	}
	if calls != 4 {
		t.Errorf("Expected exactly 4 calls for a persistently failing upstream, got %d", calls)
	}
	if attempts != 4 {
		t.Errorf("Expected attempts=4, got %d", attempts)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	rejected := errors.New("quota exceeded")
	calls := 0

	notRejected := func(err error) bool { return !errors.Is(err, rejected) }
	attempts, err := Do(context.Background(), fastPolicy(5), notRejected, nil, func(attempt int) error {
		calls++
		return rejected
	})
	if !errors.Is(err, rejected) {
		t.Fatalf("Expected rejection error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call for non-retryable error, got %d", calls)
	}
	if attempts != 1 {
		t.Errorf("Expected attempts=1, got %d", attempts)
	}
}

func TestDo_ContextCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := Policy{MaxAttempts: 3, BaseDelay: time.Minute, MaxDelay: time.Minute, Multiplier: 1}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := Do(ctx, p, nil, nil, func(attempt int) error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestDo_LoggerSeesRetriesOnly(t *testing.T) {
	logged := 0
	logger := func(attempt, maxAttempts int, delay time.Duration, err error) {
		logged++
	}

	calls := 0
	_, err := Do(context.Background(), fastPolicy(3), nil, logger, func(attempt int) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if logged != 1 {
		t.Errorf("Expected logger called once (for the single retry), got %d", logged)
	}
}

func TestDelay_CappedAtMax(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 2 * time.Second, Multiplier: 10}
	if d := p.delay(5); d > 2*time.Second {
		t.Errorf("Expected delay capped at 2s, got %v", d)
	}
}
