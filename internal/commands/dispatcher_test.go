package commands

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"rosterbot/internal/reconcile"
	"rosterbot/internal/roster"
	"rosterbot/internal/scheduler"
	"rosterbot/internal/source"
	"rosterbot/internal/storage"
	kit "rosterbot/internal/transport"
	logx "rosterbot/pkg/logx"
)

const (
	rosterChat   = int64(42)
	announceChat = int64(77)
	commandChat  = int64(500)

	ownerID    = int64(1)
	strangerID = int64(2)
)

type sentMessage struct {
	to   kit.ChatTarget
	text string
}

type fakeMessenger struct {
	mu     sync.Mutex
	nextID int
	texts  map[int]string
	sent   []sentMessage
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{nextID: 100, texts: map[int]string{}}
}

func (f *fakeMessenger) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeMessenger) Stop(ctx context.Context) error                        { return nil }

func (f *fakeMessenger) Send(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.texts[f.nextID] = text
	f.sent = append(f.sent, sentMessage{to: to, text: text})
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: f.nextID}, nil
}

func (f *fakeMessenger) Edit(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
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

// waitForReply polls for a message sent to chatID containing want.
func (f *fakeMessenger) waitForReply(t *testing.T, chatID int64, want string) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		for _, m := range f.sent {
			if m.to.ChatID == chatID && strings.Contains(m.text, want) {
				f.mu.Unlock()
				return m.text
			}
		}
		f.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t.Fatalf("no message to chat %d containing %q; sent: %+v", chatID, want, f.sent)
	return ""
}

type harness struct {
	msgr    *fakeMessenger
	store   storage.Store
	updates chan kit.Update
}

func startDispatcher(t *testing.T) *harness {
	t.Helper()
	msgr := newFakeMessenger()
	store := storage.NewMemory()
	rend := roster.NewRenderer("", "")
	rec := reconcile.New(msgr, store, rend, kit.ChatTarget{ChatID: rosterChat}, logx.Nop())
	policy := roster.NewPolicy(roster.CadenceConfig{Location: time.UTC})
	fetch := source.Func(func(ctx context.Context, weekDate time.Time) ([]string, error) {
		return []string{"Alice", "Bob"}, nil
	})

	sched := scheduler.New(scheduler.Config{
		Capacity:        3,
		InitialDelay:    time.Hour,
		FetchTimeout:    time.Second,
		FetchMaxElapsed: time.Millisecond,
	}, fetch, store, rec, policy, time.UTC, logx.Nop())
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("scheduler start: %v", err)
	}

	d := New(logx.Nop(), Deps{
		Messenger:      msgr,
		Scheduler:      sched,
		Store:          store,
		AnnounceTarget: kit.ChatTarget{ChatID: announceChat},
		Version:        "test",
		StartedAt:      time.Now(),
		Location:       time.UTC,
	}, []int64{ownerID})

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 16)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = d.DispatchLoop(ctx, updates)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-loopDone:
		case <-time.After(5 * time.Second):
			t.Error("dispatch loop did not stop")
		}
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = sched.Stop(sctx)
	})

	return &harness{msgr: msgr, store: store, updates: updates}
}

func commandUpdate(from int64, text string) kit.Update {
	return kit.Update{ChatID: commandChat, FromID: from, FromUsername: "tester", Text: text}
}

func TestRosterCommandWithoutMessage(t *testing.T) {
	t.Parallel()
	h := startDispatcher(t)
	h.updates <- commandUpdate(strangerID, "/roster")
	h.msgr.waitForReply(t, commandChat, "no roster message posted yet")
}

func TestOwnerGate(t *testing.T) {
	t.Parallel()
	h := startDispatcher(t)
	h.updates <- commandUpdate(strangerID, "/cancel rain")
	h.msgr.waitForReply(t, commandChat, "not allowed")

	h.msgr.mu.Lock()
	for _, m := range h.msgr.sent {
		if m.to.ChatID == rosterChat || m.to.ChatID == announceChat {
			t.Fatalf("stranger command reached roster/announce chat: %+v", m)
		}
	}
	h.msgr.mu.Unlock()
}

func TestCancelFlow(t *testing.T) {
	t.Parallel()
	h := startDispatcher(t)

	h.updates <- commandUpdate(ownerID, "/cancel heavy rain")
	h.msgr.waitForReply(t, commandChat, "cancelled")

	posted := h.msgr.waitForReply(t, rosterChat, "CANCELLED")
	if !strings.Contains(posted, "heavy rain") {
		t.Fatalf("roster message missing reason:\n%s", posted)
	}
	announced := h.msgr.waitForReply(t, announceChat, "CANCELLED")
	if !strings.Contains(announced, "heavy rain") {
		t.Fatalf("announcement missing reason:\n%s", announced)
	}

	h.updates <- commandUpdate(ownerID, "/uncancel")
	h.msgr.waitForReply(t, announceChat, "back ON")
}

func TestCommandAtSuffixAndCase(t *testing.T) {
	t.Parallel()
	h := startDispatcher(t)
	h.updates <- commandUpdate(strangerID, "/Version@rosterbot")
	h.msgr.waitForReply(t, commandChat, "rosterbot test")
}

func TestHelpHidesOwnerCommands(t *testing.T) {
	t.Parallel()
	h := startDispatcher(t)
	h.updates <- commandUpdate(strangerID, "/help")
	text := h.msgr.waitForReply(t, commandChat, "commands:")
	if strings.Contains(text, "/cancel") || strings.Contains(text, "/status") {
		t.Fatalf("owner commands leaked into public help:\n%s", text)
	}
	if !strings.Contains(text, "/roster") || !strings.Contains(text, "/version") {
		t.Fatalf("public commands missing from help:\n%s", text)
	}
}

func TestUnknownCommandSilentInGroups(t *testing.T) {
	t.Parallel()
	h := startDispatcher(t)

	up := commandUpdate(strangerID, "/otherbot_command")
	up.IsGroup = true
	h.updates <- up

	// A known command afterwards proves the loop processed both.
	h.updates <- commandUpdate(strangerID, "/version")
	h.msgr.waitForReply(t, commandChat, "rosterbot test")

	h.msgr.mu.Lock()
	defer h.msgr.mu.Unlock()
	for _, m := range h.msgr.sent {
		if strings.Contains(m.text, "unknown command") {
			t.Fatalf("group chat got unknown-command reply: %+v", m)
		}
	}
}
