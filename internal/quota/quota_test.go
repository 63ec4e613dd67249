package quota

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/snapsolve/snapsolve/pkg/models"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
}

func newTestController(store Store, settings Settings) *Controller {
	c := NewController(store, settings, nil)
	c.now = fixedNow
	return c
}

func TestAdmit_SequentialLimit(t *testing.T) {
	c := newTestController(NewMemoryStore(), nil)
	id := UserIdentity("u1", 5, true)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		info, err := c.Admit(ctx, id)
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		if info.Used != i {
			t.Errorf("call %d: used = %d, want %d", i, info.Used, i)
		}
		if info.Remaining != 5-i {
			t.Errorf("call %d: remaining = %d, want %d", i, info.Remaining, 5-i)
		}
	}

	_, err := c.Admit(ctx, id)
	var exceeded *ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("6th call: error = %v, want ExceededError", err)
	}
	if exceeded.Limit != 5 || exceeded.Used != 5 {
		t.Errorf("rejection = {limit:%d used:%d}, want {limit:5 used:5}", exceeded.Limit, exceeded.Used)
	}
	wantReset := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if !exceeded.ResetAt.Equal(wantReset) {
		t.Errorf("reset_at = %v, want %v", exceeded.ResetAt, wantReset)
	}

	// Rejection must not have consumed a slot.
	info, err := c.Status(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if info.Used != 5 {
		t.Errorf("used after rejection = %d, want 5", info.Used)
	}
}

func TestAdmit_ConcurrentNeverExceedsLimit(t *testing.T) {
	const limit = 5
	const callers = 50

	c := newTestController(NewMemoryStore(), nil)
	id := UserIdentity("u1", limit, true)

	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Admit(context.Background(), id)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, rejected int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case IsExceeded(err):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != limit {
		t.Errorf("succeeded = %d, want exactly %d", succeeded, limit)
	}
	if rejected != callers-limit {
		t.Errorf("rejected = %d, want %d", rejected, callers-limit)
	}

	info, err := c.Status(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if info.Used > limit {
		t.Errorf("used = %d exceeds limit %d", info.Used, limit)
	}
}

func TestAdmit_UnlimitedTierStillRecords(t *testing.T) {
	c := newTestController(NewMemoryStore(), nil)
	id := UserIdentity("vip", 0, true)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		info, err := c.Admit(ctx, id)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if info.Used != i {
			t.Errorf("call %d: used = %d, want %d", i, info.Used, i)
		}
		if info.Remaining != models.UnlimitedRemaining {
			t.Errorf("remaining = %d, want %d sentinel", info.Remaining, models.UnlimitedRemaining)
		}
	}
}

func TestAdmit_UnassignedTierDefaults(t *testing.T) {
	c := newTestController(NewMemoryStore(), nil)
	info, err := c.Admit(context.Background(), UserIdentity("u1", 0, false))
	if err != nil {
		t.Fatal(err)
	}
	if info.Limit != DefaultUserLimit {
		t.Errorf("limit = %d, want default %d", info.Limit, DefaultUserLimit)
	}
}

func TestAdmit_GuestUsesDynamicSetting(t *testing.T) {
	settings := NewMemorySettings(nil)
	c := newTestController(NewMemoryStore(), settings)
	ctx := context.Background()
	id := GuestIdentity("203.0.113.9")

	info, err := c.Admit(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if info.Limit != DefaultGuestLimit {
		t.Errorf("limit = %d, want default %d", info.Limit, DefaultGuestLimit)
	}

	// Administrative change takes effect without restart.
	if err := settings.SetInt(ctx, SettingGuestDailyLimit, 10); err != nil {
		t.Fatal(err)
	}
	info, err = c.Admit(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if info.Limit != 10 {
		t.Errorf("limit after change = %d, want 10", info.Limit)
	}
}

func TestGuestIdentity_NeverStoresRawAddress(t *testing.T) {
	id := GuestIdentity("198.51.100.7")
	key := id.key()
	if strings.Contains(key, "198.51.100.7") {
		t.Errorf("key %q contains raw address", key)
	}
	if !strings.HasPrefix(key, "guest:") {
		t.Errorf("key %q missing guest prefix", key)
	}
	if key != GuestIdentity("198.51.100.7").key() {
		t.Error("hashing must be deterministic per address")
	}
}

func TestAdmit_NoIdentity(t *testing.T) {
	c := newTestController(NewMemoryStore(), nil)
	_, err := c.Admit(context.Background(), Identity{})
	if !errors.Is(err, ErrNoIdentity) {
		t.Errorf("error = %v, want ErrNoIdentity", err)
	}
	if IsExceeded(err) {
		t.Error("missing identity must not look like a quota rejection")
	}
}

func TestStatus_DoesNotMutate(t *testing.T) {
	c := newTestController(NewMemoryStore(), nil)
	id := UserIdentity("u1", 2, true)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		info, err := c.Status(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if info.Used != 0 {
			t.Fatalf("status consumed a slot: used = %d", info.Used)
		}
	}
}

func TestIdentitiesAreIsolated(t *testing.T) {
	c := newTestController(NewMemoryStore(), nil)
	ctx := context.Background()

	if _, err := c.Admit(ctx, UserIdentity("a", 1, true)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Admit(ctx, UserIdentity("a", 1, true)); !IsExceeded(err) {
		t.Fatalf("second call for a: error = %v, want exceeded", err)
	}
	if _, err := c.Admit(ctx, UserIdentity("b", 1, true)); err != nil {
		t.Errorf("identity b must be unaffected: %v", err)
	}
}
