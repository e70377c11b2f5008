package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"alert_engine/internal/models"
	"alert_engine/pkg/logger"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
)

// ErrAlreadyFired — по этой паре (subscription, bar) триггер уже есть.
// Не сбой, а штатный ответ защиты от повторной оценки и рестартов.
var ErrAlreadyFired = errors.New("already fired for this bar")

// PendingTrigger — неопубликованная запись вместе с подпиской, по которой
// reconcile-свип восстанавливает событие для шины.
type PendingTrigger struct {
	Record       models.TriggerRecord
	Subscription models.Subscription
}

type TriggerStore interface {
	Insert(ctx context.Context, rec models.TriggerRecord) (inserted bool, err error)
	MarkPublished(ctx context.Context, triggerID string) error
	ListUnpublished(ctx context.Context, olderThan time.Time, limit int) ([]PendingTrigger, error)
}

type Publisher interface {
	Publish(ctx context.Context, queue string, event models.TriggerEvent) error
}

type Deactivator interface {
	Deactivate(ctx context.Context, subscriptionID string) error
}

// QueueFor — топик шины по типу подписчика.
func QueueFor(typ models.SubscriberType) string {
	return "triggers." + string(typ)
}

type Dispatcher struct {
	store TriggerStore
	bus   Publisher
	reg   Deactivator
}

func NewDispatcher(store TriggerStore, bus Publisher, reg Deactivator) *Dispatcher {
	return &Dispatcher{store: store, bus: bus, reg: reg}
}

// Dispatch: вставка под уникальным индексом, потом публикация. Если шина
// упала после durable-вставки — событие этой попытки потеряно (published
// остаётся false), двухфазный коммит не городим: запись подберёт
// reconcile-свип, потребители обязаны терпеть at-least-once.
func (d *Dispatcher) Dispatch(ctx context.Context, as models.ActiveSubscription, bar time.Time, snapshot []byte) (models.TriggerRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "dispatcher.dispatch")
	defer span.Finish()

	rec := models.TriggerRecord{
		TriggerID:      uuid.NewString(),
		SubscriptionID: as.Subscription.SubscriptionID,
		BarTimestamp:   bar,
		FiredAt:        time.Now().UTC(),
		Snapshot:       snapshot,
	}
	inserted, err := d.store.Insert(ctx, rec)
	if err != nil {
		return models.TriggerRecord{}, fmt.Errorf("Dispatcher.Dispatch: %w", err)
	}
	if !inserted {
		return models.TriggerRecord{}, ErrAlreadyFired
	}

	logger.Info("trigger %s: sub=%s bar=%s", rec.TriggerID, rec.SubscriptionID, bar.Format(time.RFC3339))

	event := models.TriggerEvent{
		SubscriptionID: as.Subscription.SubscriptionID,
		ConditionID:    as.Subscription.ConditionID,
		SubscriberType: as.Subscription.SubscriberType,
		SubscriberID:   as.Subscription.SubscriberID,
		ActionPayload:  as.Subscription.ActionPayload,
		BarTimestamp:   bar,
		Snapshot:       snapshot,
	}
	if err := d.bus.Publish(ctx, QueueFor(as.Subscription.SubscriberType), event); err != nil {
		// dispatch loss: запись durable, доставка — за reconcile-свипом
		logger.Error("trigger %s: bus publish failed, will reconcile: %v", rec.TriggerID, err)
	} else {
		rec.Published = true
		if err := d.store.MarkPublished(ctx, rec.TriggerID); err != nil {
			logger.Error("trigger %s: mark published failed: %v", rec.TriggerID, err)
		}
	}

	if as.Subscription.FireMode == models.FireOneShot {
		if err := d.reg.Deactivate(ctx, as.Subscription.SubscriptionID); err != nil {
			logger.Error("trigger %s: deactivate one-shot sub failed: %v", rec.TriggerID, err)
		}
	}

	return rec, nil
}
