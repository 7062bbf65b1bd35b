package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"rosterbot/internal/reconcile"
	"rosterbot/internal/roster"
	"rosterbot/internal/source"
	"rosterbot/internal/storage"
	kit "rosterbot/internal/transport"
	logx "rosterbot/pkg/logx"
)

type fakeMessenger struct {
	mu     sync.Mutex
	nextID int
	texts  map[int]string
	sends  int
	edits  int
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{nextID: 100, texts: map[int]string{}}
}

func (f *fakeMessenger) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeMessenger) Stop(ctx context.Context) error                        { return nil }

func (f *fakeMessenger) Send(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	f.nextID++
	f.texts[f.nextID] = text
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: f.nextID}, nil
}

func (f *fakeMessenger) Edit(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits++
	if _, ok := f.texts[ref.MessageID]; !ok {
		return kit.ErrNotFound
	}
	f.texts[ref.MessageID] = text
	return nil
}

func (f *fakeMessenger) Probe(ctx context.Context, ref kit.MessageRef, lastKnown string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.texts[ref.MessageID]
	return ok, nil
}

func (f *fakeMessenger) RecentMessages(ctx context.Context, to kit.ChatTarget, limit int) ([]kit.RecentMessage, error) {
	return nil, kit.ErrUnsupported
}

func (f *fakeMessenger) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

func (f *fakeMessenger) onlyText(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) != 1 {
		t.Fatalf("expected exactly one message, have %d", len(f.texts))
	}
	for _, text := range f.texts {
		return text
	}
	return ""
}

func startService(t *testing.T, fetch source.Fetcher, msgr *fakeMessenger) (*Service, storage.Store) {
	t.Helper()
	store := storage.NewMemory()
	rend := roster.NewRenderer("", "")
	rec := reconcile.New(msgr, store, rend, kit.ChatTarget{ChatID: 42}, logx.Nop())
	policy := roster.NewPolicy(roster.CadenceConfig{Location: time.UTC})

	svc := New(Config{
		Capacity: 3,
		// Keep the scheduled path quiet so tests drive cycles explicitly.
		InitialDelay:    time.Hour,
		FetchTimeout:    time.Second,
		FetchMaxElapsed: time.Millisecond,
	}, fetch, store, rec, policy, time.UTC, logx.Nop())

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := svc.Stop(ctx); err != nil {
			t.Errorf("stop: %v", err)
		}
	})
	return svc, store
}

func TestForceRefreshCreatesMessage(t *testing.T) {
	t.Parallel()
	msgr := newFakeMessenger()
	fetch := source.Func(func(ctx context.Context, weekDate time.Time) ([]string, error) {
		return []string{"Alice", "Bob", "Cara", "Dave"}, nil
	})
	svc, store := startService(t, fetch, msgr)

	ctx := context.Background()
	res := svc.ForceRefresh(ctx)
	if res.Err != nil {
		t.Fatalf("refresh: %v", res.Err)
	}
	if res.Outcome != roster.OutcomeEdited {
		t.Fatalf("outcome = %s, want edited", res.Outcome)
	}

	text := msgr.onlyText(t)
	if !strings.Contains(text, "1. Alice") || !strings.Contains(text, "- Dave") {
		t.Fatalf("unexpected roster text:\n%s", text)
	}

	ref, ok, err := store.MessageRef(ctx)
	if err != nil || !ok || ref.IsZero() {
		t.Fatalf("message ref not persisted: ref=%+v ok=%v err=%v", ref, ok, err)
	}

	st := svc.Status()
	if st.Cycles != 1 || st.LastOutcome != "edited" {
		t.Fatalf("status = %+v", st)
	}
	if st.Week == "" {
		t.Fatal("status has no week key")
	}
}

func TestForceRefreshUnchangedSecondTime(t *testing.T) {
	t.Parallel()
	msgr := newFakeMessenger()
	fetch := source.Func(func(ctx context.Context, weekDate time.Time) ([]string, error) {
		return []string{"Alice"}, nil
	})
	svc, _ := startService(t, fetch, msgr)

	ctx := context.Background()
	if res := svc.ForceRefresh(ctx); res.Outcome != roster.OutcomeEdited {
		t.Fatalf("first refresh outcome = %s", res.Outcome)
	}
	if res := svc.ForceRefresh(ctx); res.Outcome != roster.OutcomeUnchanged {
		t.Fatalf("second refresh outcome = %s", res.Outcome)
	}

	msgr.mu.Lock()
	sends, edits := msgr.sends, msgr.edits
	msgr.mu.Unlock()
	if sends != 1 || edits != 0 {
		t.Fatalf("sends=%d edits=%d, want 1/0", sends, edits)
	}
}

func TestSetCancellationTogglesBanner(t *testing.T) {
	t.Parallel()
	msgr := newFakeMessenger()
	fetch := source.Func(func(ctx context.Context, weekDate time.Time) ([]string, error) {
		return []string{"Alice", "Bob"}, nil
	})
	svc, store := startService(t, fetch, msgr)

	ctx := context.Background()
	if res := svc.ForceRefresh(ctx); res.Err != nil {
		t.Fatalf("seed refresh: %v", res.Err)
	}

	res := svc.SetCancellation(ctx, true, "storm warning", "admin")
	if res.Err != nil {
		t.Fatalf("cancel: %v", res.Err)
	}
	if res.Outcome != roster.OutcomeEdited {
		t.Fatalf("cancel outcome = %s", res.Outcome)
	}
	text := msgr.onlyText(t)
	if !strings.Contains(text, "CANCELLED") || !strings.Contains(text, "storm warning") {
		t.Fatalf("cancellation banner missing:\n%s", text)
	}

	week := svc.Status().Week
	c, ok, err := store.Cancellation(ctx, week)
	if err != nil || !ok {
		t.Fatalf("cancellation record: ok=%v err=%v", ok, err)
	}
	if !c.Cancelled || c.Reason != "storm warning" || c.Actor != "admin" {
		t.Fatalf("cancellation = %+v", c)
	}

	res = svc.SetCancellation(ctx, false, "", "")
	if res.Err != nil {
		t.Fatalf("uncancel: %v", res.Err)
	}
	if text := msgr.onlyText(t); strings.Contains(text, "CANCELLED") {
		t.Fatalf("banner still present after uncancel:\n%s", text)
	}
	if msgr.messageCount() != 1 {
		t.Fatalf("message count = %d, want 1", msgr.messageCount())
	}
}

func TestFetchFailureYieldsErrorOutcome(t *testing.T) {
	t.Parallel()
	msgr := newFakeMessenger()
	fetchErr := errors.New("sheet unreachable")
	fetch := source.Func(func(ctx context.Context, weekDate time.Time) ([]string, error) {
		return nil, fetchErr
	})
	svc, _ := startService(t, fetch, msgr)

	res := svc.ForceRefresh(context.Background())
	if res.Outcome != roster.OutcomeError {
		t.Fatalf("outcome = %s, want error", res.Outcome)
	}
	if !errors.Is(res.Err, fetchErr) {
		t.Fatalf("err = %v", res.Err)
	}
	if msgr.messageCount() != 0 {
		t.Fatal("message created despite fetch failure")
	}
}
