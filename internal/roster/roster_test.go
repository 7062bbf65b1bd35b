package roster

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func names(n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fmt.Sprintf("Player %02d", i+1))
	}
	return out
}

func TestBuildSnapshotPartition(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		total     int
		capacity  int
		confirmed int
		waitlist  int
	}{
		{name: "empty", total: 0, capacity: 21, confirmed: 0, waitlist: 0},
		{name: "under capacity", total: 5, capacity: 21, confirmed: 5, waitlist: 0},
		{name: "exact capacity", total: 21, capacity: 21, confirmed: 21, waitlist: 0},
		{name: "overflow", total: 25, capacity: 21, confirmed: 21, waitlist: 4},
		{name: "zero capacity falls back to default", total: 30, capacity: 0, confirmed: 21, waitlist: 9},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			in := names(tt.total)
			snap := BuildSnapshot(in, tt.capacity)
			if len(snap.Confirmed) != tt.confirmed {
				t.Fatalf("confirmed = %d, want %d", len(snap.Confirmed), tt.confirmed)
			}
			if len(snap.Waitlist) != tt.waitlist {
				t.Fatalf("waitlist = %d, want %d", len(snap.Waitlist), tt.waitlist)
			}
			// confirmed ++ waitlist must reconstruct the input order exactly.
			joined := append(append([]string{}, snap.Confirmed...), snap.Waitlist...)
			if len(joined) != len(in) {
				t.Fatalf("partition lost entries: %d != %d", len(joined), len(in))
			}
			for i := range in {
				if joined[i] != in[i] {
					t.Fatalf("order broken at %d: %q != %q", i, joined[i], in[i])
				}
			}
		})
	}
}

func TestTargetSunday(t *testing.T) {
	t.Parallel()
	loc := time.UTC
	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{name: "monday", now: time.Date(2025, 7, 21, 9, 0, 0, 0, loc), want: "2025-07-27"},
		{name: "saturday", now: time.Date(2025, 7, 26, 23, 59, 0, 0, loc), want: "2025-07-27"},
		{name: "sunday stays same day", now: time.Date(2025, 7, 27, 13, 0, 0, 0, loc), want: "2025-07-27"},
		{name: "monday after", now: time.Date(2025, 7, 28, 0, 0, 1, 0, loc), want: "2025-08-03"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := WeekKey(TargetSunday(tt.now))
			if got != tt.want {
				t.Fatalf("TargetSunday(%v) key = %s, want %s", tt.now, got, tt.want)
			}
		})
	}
}

func TestRenderDeterministic(t *testing.T) {
	t.Parallel()
	r := NewRenderer("", "")
	sunday := time.Date(2025, 7, 27, 0, 0, 0, 0, time.UTC)
	snap := BuildSnapshot(names(25), 21)
	cancel := Cancellation{Cancelled: true, Reason: "rain", Actor: "ops", At: time.Now()}

	a := r.Render(snap, cancel, sunday)
	b := r.Render(snap, cancel, sunday)
	if a != b {
		t.Fatal("render is not deterministic for equal inputs")
	}
}

func TestRenderSections(t *testing.T) {
	t.Parallel()
	r := NewRenderer("", "")
	sunday := time.Date(2025, 7, 27, 0, 0, 0, 0, time.UTC)

	t.Run("empty list renders placeholders", func(t *testing.T) {
		out := r.Render(Snapshot{}, Cancellation{}, sunday)
		if !strings.Contains(out, "✅ Confirmed to Play:\nNone") {
			t.Fatalf("missing confirmed placeholder:\n%s", out)
		}
		if !strings.Contains(out, "⏳ Waitlist:\nNone") {
			t.Fatalf("missing waitlist placeholder:\n%s", out)
		}
		if strings.Contains(out, "CANCELLED") {
			t.Fatalf("unexpected banner:\n%s", out)
		}
	})

	t.Run("25 participants at capacity 21", func(t *testing.T) {
		snap := BuildSnapshot(names(25), 21)
		out := r.Render(snap, Cancellation{}, sunday)
		if !strings.Contains(out, "\n1. Player 01") || !strings.Contains(out, "\n21. Player 21") {
			t.Fatalf("confirmed numbering wrong:\n%s", out)
		}
		if strings.Contains(out, "\n22. ") {
			t.Fatalf("confirmed section exceeds capacity:\n%s", out)
		}
		for i := 22; i <= 25; i++ {
			if !strings.Contains(out, fmt.Sprintf("\n- Player %02d", i)) {
				t.Fatalf("missing waitlist entry %d:\n%s", i, out)
			}
		}
	})

	t.Run("cancellation banner toggles", func(t *testing.T) {
		snap := BuildSnapshot(names(3), 21)
		plain := r.Render(snap, Cancellation{}, sunday)
		cancelled := r.Render(snap, Cancellation{Cancelled: true, Reason: "rain"}, sunday)
		if !strings.Contains(cancelled, "CANCELLED") || !strings.Contains(cancelled, "Reason: rain") {
			t.Fatalf("banner missing:\n%s", cancelled)
		}
		// Toggling off restores the exact pre-cancellation text.
		if got := r.Render(snap, Cancellation{}, sunday); got != plain {
			t.Fatal("uncancel did not restore original text")
		}
		if !strings.HasSuffix(cancelled, plain) {
			t.Fatal("banner must prepend, not rewrite, the roster body")
		}
	})
}

func TestRendererMatches(t *testing.T) {
	t.Parallel()
	r := NewRenderer("", "")
	sunday := time.Date(2025, 7, 27, 0, 0, 0, 0, time.UTC)

	normal := r.Render(BuildSnapshot(names(2), 21), Cancellation{}, sunday)
	cancelled := r.Render(BuildSnapshot(names(2), 21), Cancellation{Cancelled: true, Reason: "x"}, sunday)

	if !r.Matches(normal) {
		t.Fatal("normal variant not recognized")
	}
	if !r.Matches(cancelled) {
		t.Fatal("cancelled variant not recognized")
	}
	if r.Matches("unrelated chat message") {
		t.Fatal("false positive on unrelated text")
	}
}
