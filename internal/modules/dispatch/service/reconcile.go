package service

import (
	"context"
	"fmt"
	"time"

	"alert_engine/internal/models"
	"alert_engine/pkg/logger"
)

const reconcileBatch = 100

// Reconciler добирает durable-записи, чья публикация в шину не подтвердилась.
// Grace-период отсекает записи, которые прямо сейчас публикует живой Dispatch.
type Reconciler struct {
	store TriggerStore
	bus   Publisher
	grace time.Duration
}

func NewReconciler(store TriggerStore, bus Publisher, grace time.Duration) *Reconciler {
	return &Reconciler{store: store, bus: bus, grace: grace}
}

// Sweep публикует повторно всё неопубликованное старше grace.
// Повторная доставка возможна (упали между Publish и MarkPublished) —
// это принятая цена at-least-once.
func (r *Reconciler) Sweep(ctx context.Context) (republished int, err error) {
	olderThan := time.Now().UTC().Add(-r.grace)
	pending, err := r.store.ListUnpublished(ctx, olderThan, reconcileBatch)
	if err != nil {
		return 0, fmt.Errorf("Reconciler.Sweep: %w", err)
	}
	for _, p := range pending {
		event := models.TriggerEvent{
			SubscriptionID: p.Subscription.SubscriptionID,
			ConditionID:    p.Subscription.ConditionID,
			SubscriberType: p.Subscription.SubscriberType,
			SubscriberID:   p.Subscription.SubscriberID,
			ActionPayload:  p.Subscription.ActionPayload,
			BarTimestamp:   p.Record.BarTimestamp,
			Snapshot:       p.Record.Snapshot,
		}
		if err := r.bus.Publish(ctx, QueueFor(p.Subscription.SubscriberType), event); err != nil {
			logger.Error("reconcile: republish trigger %s failed: %v", p.Record.TriggerID, err)
			continue
		}
		if err := r.store.MarkPublished(ctx, p.Record.TriggerID); err != nil {
			logger.Error("reconcile: mark published %s failed: %v", p.Record.TriggerID, err)
			continue
		}
		republished++
	}
	if republished > 0 {
		logger.Info("reconcile: republished %d of %d pending triggers", republished, len(pending))
	}
	return republished, nil
}
