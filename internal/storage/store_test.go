package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"rosterbot/internal/roster"
	"rosterbot/internal/transport"
	logx "rosterbot/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	fileSt, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "state")}, logx.Nop())
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	sqlSt, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "state.db"), BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	stores := map[string]Store{
		"file":   fileSt,
		"sqlite": sqlSt,
		"memory": NewMemory(),
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, st := range openDrivers(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			if _, ok, err := st.MessageRef(ctx); err != nil || ok {
				t.Fatalf("fresh store has ref: ok=%v err=%v", ok, err)
			}

			ref := transport.MessageRef{ChatID: -100123, MessageID: 42}
			if err := st.SaveMessageRef(ctx, ref); err != nil {
				t.Fatalf("save ref: %v", err)
			}
			got, ok, err := st.MessageRef(ctx)
			if err != nil || !ok || got != ref {
				t.Fatalf("ref round trip: got=%+v ok=%v err=%v", got, ok, err)
			}

			text := "📋 **THM Volleyball Roster - Sunday, July 27**\n\n✅ Confirmed to Play:\nNone"
			if err := st.SaveRenderedText(ctx, text); err != nil {
				t.Fatalf("save text: %v", err)
			}
			gotText, ok, err := st.RenderedText(ctx)
			if err != nil || !ok || gotText != text {
				t.Fatalf("text round trip failed: ok=%v err=%v", ok, err)
			}

			week := "2025-07-27"
			c := roster.Cancellation{Cancelled: true, Reason: "rain", Actor: "ops", At: time.Now().UTC().Truncate(time.Second)}
			if err := st.SaveCancellation(ctx, week, c); err != nil {
				t.Fatalf("save cancellation: %v", err)
			}
			gotC, ok, err := st.Cancellation(ctx, week)
			if err != nil || !ok {
				t.Fatalf("cancellation lookup: ok=%v err=%v", ok, err)
			}
			if !gotC.Cancelled || gotC.Reason != "rain" || gotC.Actor != "ops" {
				t.Fatalf("cancellation mismatch: %+v", gotC)
			}
			if _, ok, _ := st.Cancellation(ctx, "2025-08-03"); ok {
				t.Fatal("unexpected cancellation for untouched week")
			}
		})
	}
}

func TestStorePruneCancellations(t *testing.T) {
	ctx := context.Background()
	for name, st := range openDrivers(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			weeks := []string{"2025-07-06", "2025-07-13", "2025-07-20", "2025-07-27"}
			for _, w := range weeks {
				if err := st.SaveCancellation(ctx, w, roster.Cancellation{Cancelled: true, Reason: "old"}); err != nil {
					t.Fatalf("save %s: %v", w, err)
				}
			}
			n, err := st.PruneCancellations(ctx, "2025-07-20")
			if err != nil {
				t.Fatalf("prune: %v", err)
			}
			if n != 2 {
				t.Fatalf("pruned %d, want 2", n)
			}
			if _, ok, _ := st.Cancellation(ctx, "2025-07-06"); ok {
				t.Fatal("pruned week still present")
			}
			if _, ok, _ := st.Cancellation(ctx, "2025-07-27"); !ok {
				t.Fatal("current week was pruned")
			}
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	cfg := Config{Driver: "file", Path: dir}

	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ref := transport.MessageRef{ChatID: 5, MessageID: 9}
	if err := st.SaveMessageRef(ctx, ref); err != nil {
		t.Fatalf("save ref: %v", err)
	}
	if err := st.SaveRenderedText(ctx, "roster text"); err != nil {
		t.Fatalf("save text: %v", err)
	}
	if err := st.SaveCancellation(ctx, "2025-07-27", roster.Cancellation{Cancelled: true, Reason: "rain"}); err != nil {
		t.Fatalf("save cancel: %v", err)
	}
	_ = st.Close()

	st2, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()

	if got, ok, _ := st2.MessageRef(ctx); !ok || got != ref {
		t.Fatalf("ref lost across reopen: got=%+v ok=%v", got, ok)
	}
	if got, ok, _ := st2.RenderedText(ctx); !ok || got != "roster text" {
		t.Fatalf("text lost across reopen: got=%q ok=%v", got, ok)
	}
	if c, ok, _ := st2.Cancellation(ctx, "2025-07-27"); !ok || !c.Cancelled {
		t.Fatalf("cancellation lost across reopen: %+v ok=%v", c, ok)
	}
}
