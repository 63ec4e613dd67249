package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Linear(3, time.Millisecond), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Linear(5, time.Millisecond), func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	wantErr := errors.New("always fails")
	calls := 0
	err := Do(context.Background(), Linear(3, time.Millisecond), func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected last operation error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_PermanentErrorStopsRetrying(t *testing.T) {
	cause := errors.New("permanent error")
	calls := 0
	err := Do(context.Background(), Linear(5, time.Millisecond), func() error {
		calls++
		return Permanent(cause)
	})
	if calls != 1 {
		t.Errorf("expected 1 call (no retry for permanent), got %d", calls)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected error to unwrap to cause, got %v", err)
	}
	if !IsPermanent(err) {
		t.Error("expected returned error to stay permanent")
	}
}

func TestDo_ContextCanceledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Linear(10, 100*time.Millisecond), func() error {
		calls++
		cancel()
		return errors.New("retry")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ContextCanceledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, Linear(3, time.Millisecond), func() error {
		calls++
		return nil
	})
	if calls != 0 {
		t.Errorf("expected 0 calls, got %d", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDo_ZeroConfigUsesDefaults(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: -1}, func() error {
		calls++
		return errors.New("fail")
	})
	if calls != 1 {
		t.Errorf("expected 1 call for non-positive MaxAttempts, got %d", calls)
	}
	if err == nil {
		t.Error("expected error")
	}
}

func TestDoWithValue(t *testing.T) {
	calls := 0
	value, err := DoWithValue(context.Background(), Linear(3, time.Millisecond), func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("retry")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if value != 42 {
		t.Errorf("expected 42, got %d", value)
	}
}

func TestDoWithValue_Failure(t *testing.T) {
	value, err := DoWithValue(context.Background(), Linear(2, time.Millisecond), func() (string, error) {
		return "", errors.New("always fails")
	})
	if err == nil {
		t.Error("expected error")
	}
	if value != "" {
		t.Errorf("expected zero value on failure, got %q", value)
	}
}

func TestLinear(t *testing.T) {
	config := Linear(5, 100*time.Millisecond)

	if config.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", config.MaxAttempts)
	}
	if config.InitialDelay != 100*time.Millisecond || config.MaxDelay != 100*time.Millisecond {
		t.Errorf("delays = %v/%v, want 100ms fixed", config.InitialDelay, config.MaxDelay)
	}
	if config.Factor != 1.0 {
		t.Errorf("Factor = %f, want 1.0", config.Factor)
	}
	if config.Jitter {
		t.Error("Linear should not have jitter")
	}
}

func TestExponential(t *testing.T) {
	config := Exponential(5, 100*time.Millisecond, 10*time.Second)

	if config.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", config.MaxAttempts)
	}
	if config.Factor != 2.0 {
		t.Errorf("Factor = %f, want 2.0", config.Factor)
	}
	if !config.Jitter {
		t.Error("Exponential should have jitter")
	}
}

func TestPermanent_Nil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should return nil")
	}
	if IsPermanent(nil) {
		t.Error("nil should not be permanent")
	}
}

func TestPermanentError_Unwrap(t *testing.T) {
	original := errors.New("wrapped error")
	perm := Permanent(original)

	if perm.Error() != "wrapped error" {
		t.Errorf("Error() = %q", perm.Error())
	}
	if errors.Unwrap(perm) != original {
		t.Error("Unwrap should return original error")
	}
}

func TestIsPermanent_NestedError(t *testing.T) {
	perm := Permanent(errors.New("base error"))
	wrapped := errors.Join(errors.New("wrapper"), perm)

	if !IsPermanent(wrapped) {
		t.Error("IsPermanent should detect wrapped permanent error")
	}
}
