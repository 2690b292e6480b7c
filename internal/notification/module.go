// Package notification delivers tier-change callbacks: a webhook to the CRM
// and sales alert emails. It consumes TierChanged events from the bus; a
// delivery failure is logged and retried but never touches scored state.
package notification

import (
	"context"
	"fmt"

	"leadscore_backend/internal/events"
	"leadscore_backend/internal/notification/outbox"
	"leadscore_backend/platform/logger"

	"github.com/google/uuid"
)

// Enqueuer hands an outbox record to the async dispatch queue.
// Implemented by the scheduler client; nil means deliver inline.
type Enqueuer interface {
	EnqueueTierNotification(ctx context.Context, outboxID uuid.UUID) error
}

// Module wires the notification pipeline to the event bus.
type Module struct {
	outbox     *outbox.Repository // nil without a database
	dispatcher *Dispatcher
	enqueuer   Enqueuer // nil without redis
	log        *logger.Logger
}

// NewModule creates the notification module and subscribes it to tier
// changes. Either dependency may be nil; the module degrades to inline
// delivery without them.
func NewModule(bus events.Bus, box *outbox.Repository, dispatcher *Dispatcher, enqueuer Enqueuer, log *logger.Logger) *Module {
	m := &Module{
		outbox:     box,
		dispatcher: dispatcher,
		enqueuer:   enqueuer,
		log:        log,
	}
	bus.Subscribe(events.TierChanged{}.EventName(), events.HandlerFunc(m.handleTierChanged))
	return m
}

func (m *Module) handleTierChanged(ctx context.Context, event events.Event) error {
	tc, ok := event.(events.TierChanged)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	rec := outbox.Record{
		LeadID:            tc.LeadID,
		IdentityKey:       tc.IdentityKey,
		FromTier:          tc.FromTier,
		ToTier:            tc.ToTier,
		TriggeringEventID: tc.TriggeringEventID,
		OccurredAt:        tc.ChangedAt,
	}

	if m.outbox == nil {
		// No durable outbox: best-effort inline delivery.
		if err := m.dispatcher.Deliver(ctx, rec); err != nil {
			m.log.Error("tier notification delivery failed",
				"lead_key", rec.IdentityKey, "to_tier", rec.ToTier, "error", err)
			return err
		}
		return nil
	}

	id, inserted, err := m.outbox.Insert(ctx, rec)
	if err != nil {
		m.log.Error("outbox insert failed", "lead_key", rec.IdentityKey, "error", err)
		return err
	}
	if !inserted {
		// Another handler invocation already recorded this transition.
		return nil
	}
	rec.ID = id

	if m.enqueuer != nil {
		if err := m.enqueuer.EnqueueTierNotification(ctx, id); err != nil {
			// Row stays pending; the outbox sweeper will pick it up.
			m.log.Warn("tier notification enqueue failed, left pending",
				"outbox_id", id.String(), "error", err)
		}
		return nil
	}

	return m.deliverInline(ctx, rec)
}

func (m *Module) deliverInline(ctx context.Context, rec outbox.Record) error {
	if err := m.outbox.MarkProcessing(ctx, rec.ID); err != nil {
		m.log.Warn("outbox mark processing failed", "outbox_id", rec.ID.String(), "error", err)
	}

	if err := m.dispatcher.Deliver(ctx, rec); err != nil {
		m.log.Error("tier notification delivery failed",
			"lead_key", rec.IdentityKey, "to_tier", rec.ToTier, "error", err)
		msg := err.Error()
		if markErr := m.outbox.MarkPending(ctx, rec.ID, &msg); markErr != nil {
			m.log.Warn("outbox mark pending failed", "outbox_id", rec.ID.String(), "error", markErr)
		}
		return err
	}

	return m.outbox.MarkSucceeded(ctx, rec.ID)
}
