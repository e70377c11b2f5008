package service

import (
	"context"
	"errors"
	"fmt"

	"alert_engine/internal/models"
	"alert_engine/internal/modules/registry/pg/subscriptions"
	"alert_engine/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ConditionStore interface {
	Upsert(ctx context.Context, cond models.Condition) (created bool, err error)
	Get(ctx context.Context, conditionID string) (models.Condition, error)
	Count(ctx context.Context) (int64, error)
}

type SubscriptionStore interface {
	Insert(ctx context.Context, sub models.Subscription) error
	Get(ctx context.Context, subscriptionID string) (models.Subscription, error)
	SetActive(ctx context.Context, subscriptionID string, active bool) error
	ListActive(ctx context.Context) ([]models.ActiveSubscription, error)
	ListBySubscriber(ctx context.Context, typ models.SubscriberType, subscriberID string) ([]models.ActiveSubscription, error)
	CountActiveByCondition(ctx context.Context, conditionID string) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// Registry — персистентный реестр условий и подписок. Единственное
// долгоживущее разделяемое состояние движка; все записи — атомарные
// однострочные операции.
type Registry struct {
	conds ConditionStore
	subs  SubscriptionStore
}

func NewRegistry(conds ConditionStore, subs SubscriptionStore) *Registry {
	return &Registry{conds: conds, subs: subs}
}

// Register идемпотентен: тысяча ботов с одинаковым порогом RSI схлопывается
// в одну строку, created=false для всех после первой.
func (r *Registry) Register(ctx context.Context, raw RawCondition) (cond models.Condition, created bool, err error) {
	cond, err = Normalize(raw)
	if err != nil {
		return models.Condition{}, false, err
	}
	created, err = r.conds.Upsert(ctx, cond)
	if err != nil {
		return models.Condition{}, false, fmt.Errorf("Registry.Register: %w", err)
	}
	if created {
		logger.Info("condition registered: %s %s %s/%s", cond.ConditionID, cond.Symbol, cond.Kind, cond.Timeframe)
	}
	return cond, created, nil
}

type SubscribeParams struct {
	SubscriberType   models.SubscriberType
	SubscriberID     string
	ActionPayload    []byte
	Priority         int
	Logic            models.StepLogic
	ValidityDuration int
	ValidityUnit     models.ValidityUnit
	FireMode         models.FireMode
}

func (p *SubscribeParams) applyDefaults() {
	if p.Logic != models.LogicOR {
		p.Logic = models.LogicAND
	}
	if p.ValidityDuration <= 0 {
		p.ValidityDuration = 1
	}
	if p.ValidityUnit != models.ValiditySeconds {
		p.ValidityUnit = models.ValidityBars
	}
	if p.FireMode != models.FirePerBar {
		p.FireMode = models.FireOneShot
	}
}

func (r *Registry) Subscribe(ctx context.Context, conditionID string, p SubscribeParams) (string, error) {
	if _, err := r.conds.Get(ctx, conditionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("Registry.Subscribe: %w", err)
	}

	p.applyDefaults()
	sub := models.Subscription{
		SubscriptionID:   uuid.NewString(),
		ConditionID:      conditionID,
		SubscriberType:   p.SubscriberType,
		SubscriberID:     p.SubscriberID,
		ActionPayload:    p.ActionPayload,
		Priority:         p.Priority,
		Logic:            p.Logic,
		ValidityDuration: p.ValidityDuration,
		ValidityUnit:     p.ValidityUnit,
		FireMode:         p.FireMode,
		Active:           true,
	}
	if err := r.subs.Insert(ctx, sub); err != nil {
		if errors.Is(err, subscriptions.ErrActiveExists) {
			return "", ErrDuplicateSubscription
		}
		return "", fmt.Errorf("Registry.Subscribe: %w", err)
	}
	return sub.SubscriptionID, nil
}

// Unsubscribe — мягкое отключение с проверкой владельца. Физически строку не
// трогаем, история триггеров остаётся.
func (r *Registry) Unsubscribe(ctx context.Context, subscriptionID string, requesterType models.SubscriberType, requesterID string) error {
	sub, err := r.subs.Get(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("Registry.Unsubscribe: %w", err)
	}
	if sub.SubscriberType != requesterType || sub.SubscriberID != requesterID {
		return ErrForbidden
	}
	if err := r.subs.SetActive(ctx, subscriptionID, false); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("Registry.Unsubscribe: %w", err)
	}
	return nil
}

// Deactivate дергает диспетчер после срабатывания one-shot плейбука.
func (r *Registry) Deactivate(ctx context.Context, subscriptionID string) error {
	if err := r.subs.SetActive(ctx, subscriptionID, false); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("Registry.Deactivate: %w", err)
	}
	return nil
}

func (r *Registry) ListActive(ctx context.Context) ([]models.ActiveSubscription, error) {
	return r.subs.ListActive(ctx)
}

type ConditionStatus struct {
	Condition       models.Condition `json:"condition"`
	SubscriberCount int64            `json:"subscriber_count"`
	Active          bool             `json:"active"`
}

func (r *Registry) ConditionStatus(ctx context.Context, conditionID string) (ConditionStatus, error) {
	cond, err := r.conds.Get(ctx, conditionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ConditionStatus{}, ErrNotFound
		}
		return ConditionStatus{}, fmt.Errorf("Registry.ConditionStatus: %w", err)
	}
	n, err := r.subs.CountActiveByCondition(ctx, conditionID)
	if err != nil {
		return ConditionStatus{}, fmt.Errorf("Registry.ConditionStatus: %w", err)
	}
	return ConditionStatus{Condition: cond, SubscriberCount: n, Active: n > 0}, nil
}

func (r *Registry) UserSubscriptions(ctx context.Context, typ models.SubscriberType, subscriberID string) ([]models.ActiveSubscription, error) {
	return r.subs.ListBySubscriber(ctx, typ, subscriberID)
}

// Stats — коэффициент fan-in (подписки / условия) и есть главная метрика
// ценности движка. Оба счётчика за всё время: удаление мягкое, строки
// остаются, знаменатели одной природы.
type Stats struct {
	TotalConditions            int64   `json:"total_conditions"`
	TotalSubscriptions         int64   `json:"total_subscriptions"`
	AvgSubscribersPerCondition float64 `json:"avg_subscribers_per_condition"`
}

func (r *Registry) Stats(ctx context.Context) (Stats, error) {
	nc, err := r.conds.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("Registry.Stats: %w", err)
	}
	ns, err := r.subs.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("Registry.Stats: %w", err)
	}
	st := Stats{TotalConditions: nc, TotalSubscriptions: ns}
	if nc > 0 {
		st.AvgSubscribersPerCondition = float64(ns) / float64(nc)
	}
	return st, nil
}
