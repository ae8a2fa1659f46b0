package redis

import (
	"context"
	"testing"
	"time"
)

func TestRateLimitRepository_AcquireUntilLimit(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "rl"})

	ctx := context.Background()
	base := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		window, err := repo.Acquire(ctx, "login:192.0.2.1", 3, time.Minute, base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("Acquire returned error: %v", err)
		}
		if !window.Allowed {
			t.Fatalf("attempt %d: expected allowed", i)
		}
		if window.Count != i+1 {
			t.Fatalf("attempt %d: expected count %d, got %d", i, i+1, window.Count)
		}
		if !window.Oldest.Equal(base) {
			t.Fatalf("attempt %d: expected oldest %v, got %v", i, base, window.Oldest)
		}
	}

	window, err := repo.Acquire(ctx, "login:192.0.2.1", 3, time.Minute, base.Add(5*time.Second))
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if window.Allowed {
		t.Fatal("expected fourth attempt to be rejected")
	}
	if window.Count != 3 {
		t.Fatalf("expected count to stay at 3, got %d", window.Count)
	}
}

func TestRateLimitRepository_WindowSlides(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "rl"})

	ctx := context.Background()
	base := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)

	if _, err := repo.Acquire(ctx, "k", 1, time.Minute, base); err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	window, err := repo.Acquire(ctx, "k", 1, time.Minute, base.Add(30*time.Second))
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if window.Allowed {
		t.Fatal("expected rejection inside the window")
	}

	window, err = repo.Acquire(ctx, "k", 1, time.Minute, base.Add(61*time.Second))
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if !window.Allowed || window.Count != 1 {
		t.Fatalf("expected fresh window, got %+v", window)
	}
}

func TestRateLimitRepository_InvalidInput(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{})

	if _, err := repo.Acquire(context.Background(), "k", 1, 0, time.Now()); err == nil {
		t.Fatal("expected error for non-positive window")
	}
	if _, err := repo.Acquire(context.Background(), "k", 0, time.Minute, time.Now()); err == nil {
		t.Fatal("expected error for non-positive limit")
	}
}
