package adapter

import (
	"errors"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "rosterbot/internal/transport"
)

func TestSplitTelegramTextShort(t *testing.T) {
	t.Parallel()
	got := splitTelegramText("hello", 100)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	var b strings.Builder
	for i := 0; i < 50; i++ {
		b.WriteString("line-with-some-content\n")
	}
	chunks := splitTelegramText(b.String(), 200)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > 200 {
			t.Fatalf("chunk %d exceeds limit: %d runes", i, len([]rune(c)))
		}
		// Newline-boundary splitting keeps lines whole.
		for _, line := range strings.Split(c, "\n") {
			if line != "line-with-some-content" {
				t.Fatalf("chunk %d contains broken line %q", i, line)
			}
		}
	}
}

func TestMapErrorFlood(t *testing.T) {
	t.Parallel()
	err := mapError(tele.FloodError{
		RetryAfter: 17,
	})
	wait, ok := kit.IsRateLimited(err)
	if !ok {
		t.Fatalf("expected rate-limited, got %v", err)
	}
	if wait != 17*time.Second {
		t.Fatalf("retry-after = %v", wait)
	}
}

func TestMapErrorNotFound(t *testing.T) {
	t.Parallel()
	for _, desc := range []string{
		"telegram: Bad Request: message to edit not found (400)",
		"telegram: Bad Request: message can't be edited (400)",
		"telegram: Bad Request: chat not found (400)",
	} {
		if err := mapError(errors.New(desc)); !kit.IsNotFound(err) {
			t.Fatalf("%q not mapped to not-found: %v", desc, err)
		}
	}
}

func TestMapErrorPassthrough(t *testing.T) {
	t.Parallel()
	orig := errors.New("dial tcp: connection refused")
	if err := mapError(orig); !errors.Is(err, orig) {
		t.Fatalf("transient error rewritten: %v", err)
	}
	if _, ok := kit.IsRateLimited(mapError(orig)); ok {
		t.Fatal("transient error misclassified as rate-limited")
	}
}
