package subscriptions

import (
	"context"
	"errors"
	"fmt"

	"alert_engine/internal/models"
	"alert_engine/pkg/db"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrActiveExists поднимаем на конфликт частичного уникального индекса
// subscriptions_active_uniq; сервис мапит его в ErrDuplicateSubscription.
var ErrActiveExists = errors.New("active subscription exists")

// Subscriptions implement db store
type Subscriptions struct {
	txm *db.PgTxManager
}

// New instance
func New(txm *db.PgTxManager) *Subscriptions {
	return &Subscriptions{txm: txm}
}

const insertSQL = `
INSERT INTO subscriptions (subscription_id, condition_id, subscriber_type, subscriber_id,
    action_payload, priority, logic, validity_duration, validity_unit, fire_mode, active,
    created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, now(), now())`

func (s *Subscriptions) Insert(ctx context.Context, sub models.Subscription) (err error) {
	defer func() {
		if err != nil && !errors.Is(err, ErrActiveExists) {
			err = fmt.Errorf("Subscriptions.Insert: %w", err)
		}
	}()

	payload := sub.ActionPayload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	err = s.txm.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, execErr := tx.Exec(ctxTx, insertSQL,
			sub.SubscriptionID, sub.ConditionID, string(sub.SubscriberType), sub.SubscriberID,
			payload, sub.Priority, string(sub.Logic), sub.ValidityDuration,
			string(sub.ValidityUnit), string(sub.FireMode),
		)
		return execErr
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrActiveExists
	}
	return err
}

const getSQL = `
SELECT subscription_id, condition_id, subscriber_type, subscriber_id, action_payload,
    priority, logic, validity_duration, validity_unit, fire_mode, active, created_at, updated_at
FROM subscriptions WHERE subscription_id = $1`

func (s *Subscriptions) Get(ctx context.Context, subscriptionID string) (sub models.Subscription, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Subscriptions.Get: %w", err)
		}
	}()
	row := s.txm.Conn().QueryRow(ctx, getSQL, subscriptionID)
	sub, err = scanSubscription(row.Scan)
	return sub, err
}

const setActiveSQL = `
UPDATE subscriptions SET active = $2, updated_at = now() WHERE subscription_id = $1`

func (s *Subscriptions) SetActive(ctx context.Context, subscriptionID string, active bool) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Subscriptions.SetActive: %w", err)
		}
	}()
	return s.txm.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		tag, execErr := tx.Exec(ctxTx, setActiveSQL, subscriptionID, active)
		if execErr != nil {
			return execErr
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
}

const listActiveSQL = `
SELECT s.subscription_id, s.condition_id, s.subscriber_type, s.subscriber_id, s.action_payload,
    s.priority, s.logic, s.validity_duration, s.validity_unit, s.fire_mode, s.active,
    s.created_at, s.updated_at,
    c.condition_id, c.symbol, c.timeframe, c.kind, c.indicator, c.operator, c.params, c.created_at
FROM subscriptions s
JOIN conditions c ON c.condition_id = s.condition_id
WHERE s.active
ORDER BY s.subscriber_type, s.subscriber_id, s.priority`

// ListActive — свежая выборка активных подписок с условиями. Оценщик зовёт её
// каждый тик вместо долгоживущего списка в памяти.
func (s *Subscriptions) ListActive(ctx context.Context) (out []models.ActiveSubscription, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Subscriptions.ListActive: %w", err)
		}
	}()
	rows, err := s.txm.Conn().Query(ctx, listActiveSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJoined(rows)
}

const listBySubscriberSQL = `
SELECT s.subscription_id, s.condition_id, s.subscriber_type, s.subscriber_id, s.action_payload,
    s.priority, s.logic, s.validity_duration, s.validity_unit, s.fire_mode, s.active,
    s.created_at, s.updated_at,
    c.condition_id, c.symbol, c.timeframe, c.kind, c.indicator, c.operator, c.params, c.created_at
FROM subscriptions s
JOIN conditions c ON c.condition_id = s.condition_id
WHERE s.active AND s.subscriber_type = $1 AND s.subscriber_id = $2
ORDER BY s.priority`

func (s *Subscriptions) ListBySubscriber(ctx context.Context, typ models.SubscriberType, subscriberID string) (out []models.ActiveSubscription, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Subscriptions.ListBySubscriber: %w", err)
		}
	}()
	rows, err := s.txm.Conn().Query(ctx, listBySubscriberSQL, string(typ), subscriberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJoined(rows)
}

func (s *Subscriptions) CountActiveByCondition(ctx context.Context, conditionID string) (n int64, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Subscriptions.CountActiveByCondition: %w", err)
		}
	}()
	err = s.txm.Conn().QueryRow(ctx,
		`SELECT count(*) FROM subscriptions WHERE active AND condition_id = $1`, conditionID).Scan(&n)
	return n, err
}

func (s *Subscriptions) Count(ctx context.Context) (n int64, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Subscriptions.Count: %w", err)
		}
	}()
	err = s.txm.Conn().QueryRow(ctx, `SELECT count(*) FROM subscriptions`).Scan(&n)
	return n, err
}

func scanSubscription(scan func(dest ...any) error) (models.Subscription, error) {
	var (
		sub                    models.Subscription
		typ, logic, unit, mode string
	)
	err := scan(&sub.SubscriptionID, &sub.ConditionID, &typ, &sub.SubscriberID,
		&sub.ActionPayload, &sub.Priority, &logic, &sub.ValidityDuration, &unit,
		&mode, &sub.Active, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return models.Subscription{}, err
	}
	sub.SubscriberType = models.SubscriberType(typ)
	sub.Logic = models.StepLogic(logic)
	sub.ValidityUnit = models.ValidityUnit(unit)
	sub.FireMode = models.FireMode(mode)
	return sub, nil
}

func scanJoined(rows pgx.Rows) ([]models.ActiveSubscription, error) {
	out := make([]models.ActiveSubscription, 0)
	for rows.Next() {
		var (
			sub                    models.Subscription
			cond                   models.Condition
			typ, logic, unit, mode string
			tf, kind, operator     string
			params                 []byte
		)
		err := rows.Scan(&sub.SubscriptionID, &sub.ConditionID, &typ, &sub.SubscriberID,
			&sub.ActionPayload, &sub.Priority, &logic, &sub.ValidityDuration, &unit,
			&mode, &sub.Active, &sub.CreatedAt, &sub.UpdatedAt,
			&cond.ConditionID, &cond.Symbol, &tf, &kind, &cond.Indicator, &operator,
			&params, &cond.CreatedAt)
		if err != nil {
			return nil, err
		}
		sub.SubscriberType = models.SubscriberType(typ)
		sub.Logic = models.StepLogic(logic)
		sub.ValidityUnit = models.ValidityUnit(unit)
		sub.FireMode = models.FireMode(mode)
		cond.Timeframe = models.Timeframe(tf)
		cond.Kind = models.Kind(kind)
		cond.Operator = models.Operator(operator)
		if err := sonic.Unmarshal(params, &cond.Params); err != nil {
			return nil, err
		}
		out = append(out, models.ActiveSubscription{Subscription: sub, Condition: cond})
	}
	return out, rows.Err()
}
