package utils

import (
	"context"
	"testing"
	"time"
)

func TestWaitForReturnsWhenSleepEnds(t *testing.T) {
	original := sleep
	sleep = func(time.Duration) {}
	defer func() { sleep = original }()

	if err := WaitFor(context.Background(), time.Hour); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestWaitForHonoursCancellation(t *testing.T) {
	block := make(chan struct{})
	original := sleep
	sleep = func(time.Duration) { <-block }
	defer func() {
		close(block)
		sleep = original
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := WaitFor(ctx, time.Hour); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		expect  time.Duration
	}{
		{attempt: -1, expect: time.Second},
		{attempt: 0, expect: time.Second},
		{attempt: 1, expect: 2 * time.Second},
		{attempt: 3, expect: 8 * time.Second},
		{attempt: 10, expect: 30 * time.Second},
	}

	for _, tt := range tests {
		if got := Backoff(time.Second, 30*time.Second, tt.attempt); got != tt.expect {
			t.Fatalf("attempt %d: expected %s, got %s", tt.attempt, tt.expect, got)
		}
	}
}
