package app

import (
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestCleanupReleasesInReverseOrder(t *testing.T) {
	var order []string
	var c cleanup
	for _, name := range []string{"tracer", "postgres", "redis", "kafka producer"} {
		name := name // per-iteration copy; go directive lowered to 1.21 for the local toolchain
		c.add(name, func() error {
			order = append(order, name)
			return nil
		})
	}

	c.run(zaptest.NewLogger(t))

	want := []string{"kafka producer", "redis", "postgres", "tracer"}
	if len(order) != len(want) {
		t.Fatalf("expected %d releases, got %v", len(want), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected release order %v, got %v", want, order)
		}
	}
}

func TestCleanupContinuesPastFailuresAndRunsOnce(t *testing.T) {
	calls := 0
	var c cleanup
	c.add("postgres", func() error {
		calls++
		return nil
	})
	c.add("redis", func() error {
		calls++
		return errors.New("connection already closed")
	})

	log := zaptest.NewLogger(t)
	c.run(log)
	c.run(log)

	if calls != 2 {
		t.Fatalf("expected each dependency released exactly once, got %d calls", calls)
	}
}
