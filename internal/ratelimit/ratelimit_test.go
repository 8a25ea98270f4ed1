package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExtractWait(t *testing.T) {
	cases := []struct {
		output string
		want   time.Duration
		found  bool
	}{
		{"try again in 45 seconds", 45 * time.Second, true},
		{"Please wait 30 seconds before retrying", 30 * time.Second, true},
		{"120 seconds remaining in this window", 120 * time.Second, true},
		{"retry after 10", 10 * time.Second, true},
		{"Try Again In 5 Seconds", 5 * time.Second, true},
		{"try again in 1 second", 1 * time.Second, true},
		{"no timing info", 0, false},
		{"", 0, false},
	}

	for _, tc := range cases {
		got, found := ExtractWait(tc.output)
		if found != tc.found {
			t.Errorf("ExtractWait(%q) found = %v, want %v", tc.output, found, tc.found)
			continue
		}
		if found && got != tc.want {
			t.Errorf("ExtractWait(%q) = %v, want %v", tc.output, got, tc.want)
		}
	}
}

func TestExtractWait_FirstMatchWins(t *testing.T) {
	got, found := ExtractWait("try again in 45 seconds (wait 99 seconds if that fails)")
	if !found || got != 45*time.Second {
		t.Errorf("ExtractWait = %v/%v, want 45s/true", got, found)
	}
}

func TestCountdown_TicksIncludeInitial(t *testing.T) {
	old := tick
	tick = time.Millisecond
	defer func() { tick = old }()

	var ticks []int
	err := Countdown(context.Background(), 3*time.Millisecond, func(remaining int) {
		ticks = append(ticks, remaining)
	})
	if err != nil {
		t.Fatalf("Countdown error = %v", err)
	}

	want := []int{3, 2, 1}
	if len(ticks) != len(want) {
		t.Fatalf("tick count = %d, want %d (%v)", len(ticks), len(want), ticks)
	}
	for i := range want {
		if ticks[i] != want[i] {
			t.Errorf("tick[%d] = %d, want %d", i, ticks[i], want[i])
		}
	}
}

func TestCountdown_Cancel(t *testing.T) {
	old := tick
	tick = 10 * time.Millisecond
	defer func() { tick = old }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Countdown(ctx, time.Hour, nil)
	}()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Countdown error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Countdown did not return after cancel")
	}
}

func TestCountdown_ZeroDuration(t *testing.T) {
	calls := 0
	err := Countdown(context.Background(), 0, func(int) { calls++ })
	if err != nil {
		t.Fatalf("Countdown error = %v", err)
	}
	if calls != 0 {
		t.Errorf("onTick calls = %d, want 0", calls)
	}
}
