package service

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"alert_engine/internal/models"
	"alert_engine/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	logger.InfoLogger = zap.NewNop()
	logger.FatalLogger = zap.NewNop()
	os.Exit(m.Run())
}

type memTriggers struct {
	rows      map[string]models.TriggerRecord // по (sub|bar)
	byID      map[string]string
	published map[string]bool
	insertErr error
}

func newMemTriggers() *memTriggers {
	return &memTriggers{
		rows:      map[string]models.TriggerRecord{},
		byID:      map[string]string{},
		published: map[string]bool{},
	}
}

func barKey(subID string, bar time.Time) string {
	return subID + "|" + bar.UTC().Format(time.RFC3339)
}

func (m *memTriggers) Insert(_ context.Context, rec models.TriggerRecord) (bool, error) {
	if m.insertErr != nil {
		return false, m.insertErr
	}
	key := barKey(rec.SubscriptionID, rec.BarTimestamp)
	if _, ok := m.rows[key]; ok {
		return false, nil
	}
	m.rows[key] = rec
	m.byID[rec.TriggerID] = key
	return true, nil
}

func (m *memTriggers) MarkPublished(_ context.Context, triggerID string) error {
	key, ok := m.byID[triggerID]
	if !ok {
		return errors.New("no such trigger")
	}
	m.published[key] = true
	return nil
}

func (m *memTriggers) ListUnpublished(_ context.Context, olderThan time.Time, limit int) ([]PendingTrigger, error) {
	var out []PendingTrigger
	for key, rec := range m.rows {
		if m.published[key] || !rec.FiredAt.Before(olderThan) || len(out) >= limit {
			continue
		}
		out = append(out, PendingTrigger{
			Record:       rec,
			Subscription: models.Subscription{SubscriptionID: rec.SubscriptionID, SubscriberType: models.SubscriberBot},
		})
	}
	return out, nil
}

type memBus struct {
	published []models.TriggerEvent
	queues    []string
	err       error
}

func (b *memBus) Publish(_ context.Context, queue string, event models.TriggerEvent) error {
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, event)
	b.queues = append(b.queues, queue)
	return nil
}

type memDeactivator struct {
	deactivated []string
}

func (d *memDeactivator) Deactivate(_ context.Context, subID string) error {
	d.deactivated = append(d.deactivated, subID)
	return nil
}

func activeBotSub(subID string, mode models.FireMode) models.ActiveSubscription {
	return models.ActiveSubscription{
		Subscription: models.Subscription{
			SubscriptionID: subID, ConditionID: "cond-1",
			SubscriberType: models.SubscriberBot, SubscriberID: "bot-1",
			ActionPayload: []byte(`{"side":"buy"}`), FireMode: mode, Active: true,
		},
	}
}

var testBar = time.Date(2026, 3, 15, 14, 0, 0, 0, time.UTC)

func TestDispatchExactlyOncePerBar(t *testing.T) {
	store, bus, reg := newMemTriggers(), &memBus{}, &memDeactivator{}
	d := NewDispatcher(store, bus, reg)
	as := activeBotSub("s1", models.FirePerBar)

	rec, err := d.Dispatch(context.Background(), as, testBar, []byte(`{"close":1}`))
	require.NoError(t, err)
	assert.True(t, rec.Published)
	require.Len(t, bus.published, 1)
	assert.Equal(t, "triggers.bot", bus.queues[0])
	assert.Equal(t, "s1", bus.published[0].SubscriptionID)
	assert.Equal(t, []byte(`{"side":"buy"}`), bus.published[0].ActionPayload)

	// тот же бар ещё раз — конфликт, не дубль
	_, err = d.Dispatch(context.Background(), as, testBar, nil)
	assert.ErrorIs(t, err, ErrAlreadyFired)
	assert.Len(t, bus.published, 1)

	// следующий бар — новый триггер
	_, err = d.Dispatch(context.Background(), as, testBar.Add(time.Hour), nil)
	require.NoError(t, err)
	assert.Len(t, bus.published, 2)
}

func TestDispatchOneShotDeactivates(t *testing.T) {
	store, bus, reg := newMemTriggers(), &memBus{}, &memDeactivator{}
	d := NewDispatcher(store, bus, reg)

	_, err := d.Dispatch(context.Background(), activeBotSub("s1", models.FireOneShot), testBar, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, reg.deactivated)

	_, err = d.Dispatch(context.Background(), activeBotSub("s2", models.FirePerBar), testBar, nil)
	require.NoError(t, err)
	assert.Len(t, reg.deactivated, 1, "per_bar не деактивируется")
}

// Шина упала после durable-вставки: Dispatch не ошибка, запись остаётся
// неопубликованной и ждёт reconcile-свип.
func TestDispatchSurvivesBusFailure(t *testing.T) {
	store, bus, reg := newMemTriggers(), &memBus{err: errors.New("amqp down")}, &memDeactivator{}
	d := NewDispatcher(store, bus, reg)

	rec, err := d.Dispatch(context.Background(), activeBotSub("s1", models.FireOneShot), testBar, nil)
	require.NoError(t, err)
	assert.False(t, rec.Published)
	assert.Len(t, store.rows, 1)
	assert.Empty(t, store.published)
	// one_shot гасится даже при потере публикации: триггер записан
	assert.Equal(t, []string{"s1"}, reg.deactivated)

	// повторный Dispatch того же бара после рестарта всё равно конфликт
	_, err = d.Dispatch(context.Background(), activeBotSub("s1", models.FireOneShot), testBar, nil)
	assert.ErrorIs(t, err, ErrAlreadyFired)
}

func TestDispatchStoreError(t *testing.T) {
	store := newMemTriggers()
	store.insertErr = errors.New("pg down")
	d := NewDispatcher(store, &memBus{}, &memDeactivator{})

	_, err := d.Dispatch(context.Background(), activeBotSub("s1", models.FirePerBar), testBar, nil)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyFired)
}

func TestReconcilerRepublishes(t *testing.T) {
	store, bus := newMemTriggers(), &memBus{err: errors.New("amqp down")}
	d := NewDispatcher(store, bus, &memDeactivator{})

	// две потерянных публикации
	_, err := d.Dispatch(context.Background(), activeBotSub("s1", models.FirePerBar), testBar, []byte(`{"close":1}`))
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background(), activeBotSub("s2", models.FirePerBar), testBar, nil)
	require.NoError(t, err)

	// свежие записи под grace-периодом не трогаем
	r := NewReconciler(store, bus, time.Minute)
	bus.err = nil
	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	// grace нулевой — добираем обе
	r = NewReconciler(store, bus, -time.Second)
	n, err = r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, bus.published, 2)
	assert.Len(t, store.published, 2)

	// повторный свип пуст
	n, err = r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReconcilerKeepsPendingOnBusFailure(t *testing.T) {
	store, bus := newMemTriggers(), &memBus{err: errors.New("amqp down")}
	d := NewDispatcher(store, bus, &memDeactivator{})
	_, err := d.Dispatch(context.Background(), activeBotSub("s1", models.FirePerBar), testBar, nil)
	require.NoError(t, err)

	r := NewReconciler(store, bus, -time.Second)
	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.published)
}
