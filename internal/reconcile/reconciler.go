// Package reconcile owns the single externally visible roster message:
// create-if-absent, edit-if-present, skip-if-unchanged.
package reconcile

import (
	"context"
	"time"

	"rosterbot/internal/roster"
	"rosterbot/internal/storage"
	"rosterbot/internal/transport"
	logx "rosterbot/pkg/logx"
)

// Reconciler drives the roster message toward the rendered text. At most one
// live message exists at a time; the persisted ref is the only handle to it.
type Reconciler struct {
	msgr  transport.Messenger
	store storage.Store
	rend  *roster.Renderer
	log   logx.Logger

	target  transport.ChatTarget
	sendOpt *transport.SendOptions
}

func New(msgr transport.Messenger, store storage.Store, rend *roster.Renderer, target transport.ChatTarget, log logx.Logger) *Reconciler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reconciler{
		msgr:    msgr,
		store:   store,
		rend:    rend,
		log:     log,
		target:  target,
		sendOpt: &transport.SendOptions{DisablePreview: true},
	}
}

// Reconcile performs at most one externally visible mutation (one edit or one
// create, never both) and returns the cycle outcome.
//
// Rate-limit and transient failures leave persisted state untouched so the
// next cycle retries against the previous known-good ref.
func (r *Reconciler) Reconcile(ctx context.Context, snap roster.Snapshot, cancel roster.Cancellation, sunday time.Time) (roster.Outcome, error) {
	text := r.rend.Render(snap, cancel, sunday)

	prev, hasPrev, err := r.store.RenderedText(ctx)
	if err != nil {
		return roster.OutcomeError, err
	}
	ref, hasRef, err := r.store.MessageRef(ctx)
	if err != nil {
		return roster.OutcomeError, err
	}

	// Idempotence fast path: identical text and a live ref means nothing to do.
	// Without a ref the text cache is stale (the message was never posted or
	// was lost), so creation must still run.
	if hasPrev && hasRef && prev == text {
		return roster.OutcomeUnchanged, nil
	}

	if hasRef {
		err := r.msgr.Edit(ctx, ref, text, r.sendOpt)
		switch {
		case err == nil:
			r.persist(ctx, ref, text)
			r.log.Info("roster message updated", logx.Int("message_id", ref.MessageID))
			return roster.OutcomeEdited, nil
		case transport.IsNotFound(err):
			// Target vanished; recreate below. The failed edit was not a
			// mutation, so the create keeps the one-mutation-per-cycle bound.
			r.log.Warn("roster message gone; recreating", logx.Int("message_id", ref.MessageID))
		default:
			if retryAfter, ok := transport.IsRateLimited(err); ok {
				r.log.Warn("edit rate limited", logx.Duration("retry_after", retryAfter))
				return roster.OutcomeRateLimited, err
			}
			return roster.OutcomeError, err
		}
	}

	newRef, err := r.msgr.Send(ctx, r.target, text, r.sendOpt)
	if err != nil {
		if retryAfter, ok := transport.IsRateLimited(err); ok {
			r.log.Warn("create rate limited", logx.Duration("retry_after", retryAfter))
			return roster.OutcomeRateLimited, err
		}
		return roster.OutcomeError, err
	}
	r.persist(ctx, newRef, text)
	r.log.Info("roster message posted", logx.Int("message_id", newRef.MessageID))
	return roster.OutcomeEdited, nil
}

// persist records the known-good ref and text after a successful mutation.
// The message is already live, so persistence failures are logged rather than
// surfaced; restart recovery can re-adopt the message from history.
func (r *Reconciler) persist(ctx context.Context, ref transport.MessageRef, text string) {
	if err := r.store.SaveMessageRef(ctx, ref); err != nil {
		r.log.Error("persisting message ref failed", logx.Err(err))
	}
	if err := r.store.SaveRenderedText(ctx, text); err != nil {
		r.log.Error("persisting rendered text failed", logx.Err(err))
	}
}
