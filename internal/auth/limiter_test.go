package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/gatehouse-app/gatehouse/internal/auth"
)

func newLimiter(t *testing.T) (*auth.LoginLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return auth.NewLoginLimiter(client), mr
}

func TestLimiterLocksAfterRepeatedFailures(t *testing.T) {
	limiter, _ := newLimiter(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		remaining, err := limiter.RecordFailure(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("record failure %d: %v", i, err)
		}
		if remaining != 4-i {
			t.Fatalf("attempt %d: expected %d remaining, got %d", i, 4-i, remaining)
		}
		locked, err := limiter.Check(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		if locked > 0 {
			t.Fatalf("must not lock before the limit")
		}
	}

	if _, err := limiter.RecordFailure(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("record final failure: %v", err)
	}
	locked, err := limiter.Check(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("check after lock: %v", err)
	}
	if locked <= 0 {
		t.Fatalf("expected lockout after fifth failure")
	}
}

func TestLimiterTracksIPsIndependently(t *testing.T) {
	limiter, _ := newLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := limiter.RecordFailure(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}
	locked, err := limiter.Check(ctx, "10.0.0.2")
	if err != nil {
		t.Fatalf("check other ip: %v", err)
	}
	if locked > 0 {
		t.Fatalf("other IPs must not be affected")
	}
}

func TestLimiterResetClearsState(t *testing.T) {
	limiter, _ := newLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := limiter.RecordFailure(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}
	if err := limiter.Reset(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	locked, err := limiter.Check(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if locked > 0 {
		t.Fatalf("reset must clear the lock")
	}
}

func TestLimiterLockExpires(t *testing.T) {
	limiter, mr := newLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := limiter.RecordFailure(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}
	mr.FastForward(11 * time.Minute)

	locked, err := limiter.Check(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if locked > 0 {
		t.Fatalf("lock must expire after its duration")
	}
}
