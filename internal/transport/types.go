package transport

import (
	"context"
	"time"
)

// ChatTarget addresses a chat (and optionally a forum topic thread).
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// MessageRef identifies a single message the bot owns.
type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

func (r MessageRef) IsZero() bool { return r.ChatID == 0 && r.MessageID == 0 }

func (r MessageRef) Target() ChatTarget {
	return ChatTarget{ChatID: r.ChatID, ThreadID: r.ThreadID}
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Silent         bool
}

// RecentMessage is one entry from a bounded history scan.
type RecentMessage struct {
	Ref      MessageRef
	Text     string
	FromSelf bool
	At       time.Time
}

// Update is an incoming message delivered to the command dispatcher.
type Update struct {
	MessageID    int
	ChatID       int64
	ThreadID     int
	FromID       int64
	FromUsername string
	FromName     string
	Text         string
	IsGroup      bool
}

// Messenger is the messaging capability used by the reconciler and the
// command surface. Implementations map platform errors onto the taxonomy in
// errors.go; callers only ever branch on IsRateLimited / IsNotFound.
type Messenger interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	Send(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error

	// Probe reports whether ref still resolves. lastKnown is the message's
	// last known content; adapters without a direct lookup may use it to
	// probe via an idempotent edit.
	Probe(ctx context.Context, ref MessageRef, lastKnown string) (bool, error)

	// RecentMessages returns up to limit recent messages from the chat,
	// newest first. Adapters that cannot read history return ErrUnsupported.
	RecentMessages(ctx context.Context, to ChatTarget, limit int) ([]RecentMessage, error)
}
