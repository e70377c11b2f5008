package triggers

import (
	"context"
	"fmt"
	"time"

	"alert_engine/internal/models"
	dispatch "alert_engine/internal/modules/dispatch/service"
	"alert_engine/pkg/db"

	"github.com/jackc/pgx/v5"
)

// Triggers implement db store
type Triggers struct {
	txm *db.PgTxManager
}

// New instance
func New(txm *db.PgTxManager) *Triggers {
	return &Triggers{txm: txm}
}

const insertSQL = `
INSERT INTO triggers (trigger_id, subscription_id, bar_timestamp, fired_at, snapshot, published)
VALUES ($1, $2, $3, $4, $5, FALSE)
ON CONFLICT ON CONSTRAINT triggers_sub_bar_uniq DO NOTHING`

// Insert: inserted=false — конфликт по (subscription_id, bar_timestamp),
// триггер для этого бара уже записан.
func (t *Triggers) Insert(ctx context.Context, rec models.TriggerRecord) (inserted bool, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Triggers.Insert: %w", err)
		}
	}()

	snapshot := rec.Snapshot
	if len(snapshot) == 0 {
		snapshot = []byte(`{}`)
	}
	err = t.txm.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		tag, execErr := tx.Exec(ctxTx, insertSQL,
			rec.TriggerID, rec.SubscriptionID, rec.BarTimestamp, rec.FiredAt, snapshot,
		)
		if execErr != nil {
			return execErr
		}
		inserted = tag.RowsAffected() > 0
		return nil
	})
	return inserted, err
}

func (t *Triggers) MarkPublished(ctx context.Context, triggerID string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Triggers.MarkPublished: %w", err)
		}
	}()
	return t.txm.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, execErr := tx.Exec(ctxTx, `UPDATE triggers SET published = TRUE WHERE trigger_id = $1`, triggerID)
		return execErr
	})
}

const listUnpublishedSQL = `
SELECT t.trigger_id, t.subscription_id, t.bar_timestamp, t.fired_at, t.snapshot,
       s.subscription_id, s.condition_id, s.subscriber_type, s.subscriber_id,
       s.action_payload, s.priority, s.logic, s.validity_duration, s.validity_unit,
       s.fire_mode, s.active, s.created_at, s.updated_at
FROM triggers t
JOIN subscriptions s ON s.subscription_id = t.subscription_id
WHERE NOT t.published AND t.fired_at < $1
ORDER BY t.fired_at
LIMIT $2`

func (t *Triggers) ListUnpublished(ctx context.Context, olderThan time.Time, limit int) (pending []dispatch.PendingTrigger, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Triggers.ListUnpublished: %w", err)
		}
	}()

	rows, err := t.txm.Conn().Query(ctx, listUnpublishedSQL, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p                          dispatch.PendingTrigger
			subType, logic, unit, mode string
		)
		err = rows.Scan(
			&p.Record.TriggerID, &p.Record.SubscriptionID, &p.Record.BarTimestamp,
			&p.Record.FiredAt, &p.Record.Snapshot,
			&p.Subscription.SubscriptionID, &p.Subscription.ConditionID, &subType,
			&p.Subscription.SubscriberID, &p.Subscription.ActionPayload,
			&p.Subscription.Priority, &logic, &p.Subscription.ValidityDuration, &unit,
			&mode, &p.Subscription.Active, &p.Subscription.CreatedAt, &p.Subscription.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		p.Subscription.SubscriberType = models.SubscriberType(subType)
		p.Subscription.Logic = models.StepLogic(logic)
		p.Subscription.ValidityUnit = models.ValidityUnit(unit)
		p.Subscription.FireMode = models.FireMode(mode)
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

func (t *Triggers) Count(ctx context.Context) (n int64, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Triggers.Count: %w", err)
		}
	}()
	err = t.txm.Conn().QueryRow(ctx, `SELECT count(*) FROM triggers`).Scan(&n)
	return n, err
}
