package hardware

import (
	"context"
	"testing"
)

func TestSessionPermitsTryAcquire(t *testing.T) {
	permits := NewSessionPermits(2)

	if !permits.TryAcquire() {
		t.Fatal("first TryAcquire() = false, want true")
	}
	if !permits.TryAcquire() {
		t.Fatal("second TryAcquire() = false, want true")
	}
	if permits.TryAcquire() {
		t.Fatal("third TryAcquire() = true, want false at capacity")
	}

	permits.Release()
	if !permits.TryAcquire() {
		t.Fatal("TryAcquire() after Release() = false, want true")
	}
}

func TestSessionPermitsAcquireCancelled(t *testing.T) {
	permits := NewSessionPermits(1)
	if !permits.TryAcquire() {
		t.Fatal("TryAcquire() = false, want true")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := permits.Acquire(ctx); err == nil {
		t.Error("Acquire() with cancelled context = nil, want error")
	}
}

func TestSessionPermitsAcquire(t *testing.T) {
	permits := NewSessionPermits(1)

	if err := permits.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if permits.Available() != 0 {
		t.Errorf("Available() = %d, want 0", permits.Available())
	}

	permits.Release()
	if permits.Available() != 1 {
		t.Errorf("Available() after Release() = %d, want 1", permits.Available())
	}
}

func TestSessionPermitsFloor(t *testing.T) {
	permits := NewSessionPermits(0)

	if permits.Available() != 1 {
		t.Errorf("Available() = %d, want floor of 1", permits.Available())
	}
}

func TestSessionPermitsReleaseBeyondCapacity(t *testing.T) {
	permits := NewSessionPermits(1)

	// Extra release must not grow the pool
	permits.Release()
	if permits.Available() != 1 {
		t.Errorf("Available() = %d, want 1", permits.Available())
	}
}

func TestDevicePermitsFor(t *testing.T) {
	devices := []Device{
		{ID: 0, MaxConcurrentSessions: 2},
		{ID: 1, MaxConcurrentSessions: 5},
	}
	permits := NewDevicePermits(devices)

	if got := permits.For(0).Available(); got != 2 {
		t.Errorf("For(0).Available() = %d, want 2", got)
	}
	if got := permits.For(1).Available(); got != 5 {
		t.Errorf("For(1).Available() = %d, want 5", got)
	}

	// Unknown device gets a single-session pool
	if got := permits.For(7).Available(); got != 1 {
		t.Errorf("For(7).Available() = %d, want 1", got)
	}

	// Repeat lookups share the same pool
	first := permits.For(0)
	if !first.TryAcquire() {
		t.Fatal("TryAcquire() = false, want true")
	}
	if got := permits.For(0).Available(); got != 1 {
		t.Errorf("For(0).Available() after acquire = %d, want 1", got)
	}
}
