package reconcile

import (
	"context"
	"errors"

	"rosterbot/internal/transport"
	logx "rosterbot/pkg/logx"
)

// historyScanLimit bounds the restart-recovery scan.
const historyScanLimit = 50

// Bootstrap recovers the roster message handle after a restart so the first
// cycle edits instead of duplicate-posting.
//
// Order: trust a persisted ref that still probes alive; otherwise scan recent
// history for a message of ours matching the roster marker and adopt it;
// otherwise start empty and let the first cycle create.
func (r *Reconciler) Bootstrap(ctx context.Context) error {
	ref, hasRef, err := r.store.MessageRef(ctx)
	if err != nil {
		return err
	}

	if hasRef {
		lastKnown, _, _ := r.store.RenderedText(ctx)
		alive, err := r.msgr.Probe(ctx, ref, lastKnown)
		if err != nil {
			if _, limited := transport.IsRateLimited(err); limited {
				// Keep the ref; the first cycle will sort it out once the
				// platform lets us talk again.
				r.log.Warn("bootstrap probe rate limited; trusting persisted ref")
				return nil
			}
			return err
		}
		if alive {
			r.log.Info("recovered roster message", logx.Int("message_id", ref.MessageID))
			return nil
		}
		r.log.Warn("persisted roster message no longer resolves", logx.Int("message_id", ref.MessageID))
		if err := r.store.SaveMessageRef(ctx, transport.MessageRef{}); err != nil {
			r.log.Error("clearing stale message ref failed", logx.Err(err))
		}
	}

	msgs, err := r.msgr.RecentMessages(ctx, r.target, historyScanLimit)
	if err != nil {
		if errors.Is(err, transport.ErrUnsupported) {
			r.log.Debug("history scan unsupported by transport; first cycle will create")
			return nil
		}
		return err
	}

	// Newest first; the first match is the live roster message.
	for _, m := range msgs {
		if !m.FromSelf || !r.rend.Matches(m.Text) {
			continue
		}
		if err := r.store.SaveMessageRef(ctx, m.Ref); err != nil {
			return err
		}
		if err := r.store.SaveRenderedText(ctx, m.Text); err != nil {
			return err
		}
		r.log.Info("adopted roster message from history", logx.Int("message_id", m.Ref.MessageID))
		return nil
	}

	r.log.Info("no prior roster message found; first cycle will create")
	return nil
}
