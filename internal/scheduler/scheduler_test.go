package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNewRejectsBadSpec(t *testing.T) {
	t.Parallel()

	for _, spec := range []string{"", "every monday", "0 9 * *", "61 9 * * *"} {
		if _, err := New(spec, time.UTC, func(context.Context, time.Time) {}); err == nil {
			t.Errorf("New(%q) accepted", spec)
		}
	}
}

func TestNext(t *testing.T) {
	t.Parallel()

	jst := time.FixedZone("JST", 9*60*60)
	s, err := New("0 9 * * MON", jst, func(context.Context, time.Time) {})
	if err != nil {
		t.Fatal(err)
	}

	// Friday 2026-05-01 12:00 JST
	got := s.Next(time.Date(2026, 5, 1, 12, 0, 0, 0, jst))
	want := time.Date(2026, 5, 4, 9, 0, 0, 0, jst)
	if !got.Equal(want) {
		t.Errorf("next = %v, want %v", got, want)
	}
}

func TestFireSkipsWhileBusy(t *testing.T) {
	t.Parallel()

	calls := 0
	s, err := New("* * * * *", time.UTC, func(context.Context, time.Time) { calls++ })
	if err != nil {
		t.Fatal(err)
	}

	s.busy.Lock()
	s.fire(context.Background())
	s.busy.Unlock()
	if calls != 0 {
		t.Fatalf("job ran while busy")
	}

	s.fire(context.Background())
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.fire(ctx)
	if calls != 1 {
		t.Errorf("job ran after cancel")
	}
}

func TestFireSkipsWhileSharedGuardHeld(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		held   bool
		wantCalls int
	}{
		{"guard free", false, 1},
		{"guard held elsewhere", true, 0},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			var guard sync.Mutex
			calls := 0
			s, err := New("* * * * *", time.UTC, func(context.Context, time.Time) { calls++ }, WithGuard(&guard))
			if err != nil {
				t.Fatal(err)
			}
			if c.held {
				guard.Lock()
				defer guard.Unlock()
			}
			s.fire(context.Background())
			if calls != c.wantCalls {
				t.Errorf("calls = %d, want %d", calls, c.wantCalls)
			}
			if !c.held && !guard.TryLock() {
				t.Errorf("guard not released after run")
			}
		})
	}
}
