package service

import (
	"testing"
	"time"

	"alert_engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func step(id string, logic models.StepLogic, validity int, unit models.ValidityUnit) models.ActiveSubscription {
	return models.ActiveSubscription{
		Subscription: models.Subscription{
			SubscriptionID: id, SubscriberType: models.SubscriberBot, SubscriberID: "bot-1",
			Logic: logic, ValidityDuration: validity, ValidityUnit: unit, Active: true,
		},
		Condition: models.Condition{Symbol: "BTCUSDT", Timeframe: models.TF1h},
	}
}

func TestSatisfiedValidityWindow(t *testing.T) {
	p := NewPlaybooks()
	s := step("s1", models.LogicAND, 3, models.ValidityBars)
	bar0 := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	assert.False(t, p.Satisfied(s, bar0), "без единого true шаг не удовлетворён")

	p.Record("s1", bar0, true)
	assert.True(t, p.Satisfied(s, bar0))
	assert.True(t, p.Satisfied(s, bar0.Add(3*time.Hour)), "ровно на границе окна")
	assert.False(t, p.Satisfied(s, bar0.Add(4*time.Hour)), "окно истекло")

	// false не сбрасывает якорь, он просто не двигается
	p.Record("s1", bar0.Add(time.Hour), false)
	assert.True(t, p.Satisfied(s, bar0.Add(2*time.Hour)))
}

func TestSatisfiedValiditySeconds(t *testing.T) {
	p := NewPlaybooks()
	s := step("s1", models.LogicAND, 7200, models.ValiditySeconds) // 2 бара по 1h
	bar0 := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	p.Record("s1", bar0, true)
	assert.True(t, p.Satisfied(s, bar0.Add(2*time.Hour)))
	assert.False(t, p.Satisfied(s, bar0.Add(3*time.Hour)))
}

func TestGateFireAllAndAny(t *testing.T) {
	bar := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	barFor := func(models.ActiveSubscription) time.Time { return bar }

	// плейбук из одних AND — это ALL
	p := NewPlaybooks()
	a := step("a", models.LogicAND, 1, models.ValidityBars)
	b := step("b", models.LogicAND, 1, models.ValidityBars)
	p.Record("a", bar, true)
	assert.False(t, p.GateFire([]models.ActiveSubscription{a, b}, barFor))
	p.Record("b", bar, true)
	assert.True(t, p.GateFire([]models.ActiveSubscription{a, b}, barFor))

	// плейбук из одних OR — это ANY
	p = NewPlaybooks()
	x := step("x", models.LogicOR, 1, models.ValidityBars)
	y := step("y", models.LogicOR, 1, models.ValidityBars)
	assert.False(t, p.GateFire([]models.ActiveSubscription{x, y}, barFor))
	p.Record("y", bar, true)
	assert.True(t, p.GateFire([]models.ActiveSubscription{x, y}, barFor))

	// смешанный: все AND плюс хотя бы один OR
	p = NewPlaybooks()
	p.Record("a", bar, true)
	assert.False(t, p.GateFire([]models.ActiveSubscription{a, x, y}, barFor), "OR-шагов нет в satisfied")
	p.Record("x", bar, true)
	assert.True(t, p.GateFire([]models.ActiveSubscription{a, x, y}, barFor))

	assert.False(t, NewPlaybooks().GateFire(nil, barFor))
}

// Сценарий из практики: шаг 1 — "RSI пробивает 32 снизу" с окном 3 бара,
// шаг 2 — "RSI между 25 и 35" с окном 1 бар. RSI по барам:
// 28, 27, 29, 31, 33, 38. Пробой случается на баре 4 (31 -> 33), там же
// гейт открывается впервые. На баре 5 оба якоря ещё в своих окнах, гейт
// остаётся открыт — единственность выстрела на бар обеспечивает диспетчер,
// а one_shot гасит подписку после первого срабатывания.
func TestGateFireSequencedPlaybook(t *testing.T) {
	rsi := []float64{28, 27, 29, 31, 33, 38}
	bar0 := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	barAt := func(i int) time.Time { return bar0.Add(time.Duration(i) * time.Hour) }

	cross := step("cross", models.LogicAND, 3, models.ValidityBars)
	cross.Subscription.Priority = 1
	between := step("between", models.LogicAND, 1, models.ValidityBars)
	between.Subscription.Priority = 2
	steps := []models.ActiveSubscription{cross, between}

	p := NewPlaybooks()
	var firedBars []int
	for i, v := range rsi {
		prev := v
		if i > 0 {
			prev = rsi[i-1]
		}
		p.Record("cross", barAt(i), i > 0 && prev <= 32 && v > 32)
		p.Record("between", barAt(i), v >= 25 && v <= 35)

		barFor := func(models.ActiveSubscription) time.Time { return barAt(i) }
		if p.GateFire(steps, barFor) {
			firedBars = append(firedBars, i)
		}
	}
	require.Equal(t, []int{4, 5}, firedBars)
}

// Контраст ALL/ANY на одной последовательности: шаг 1 — "RSI пробивает 32
// снизу" с окном 1 бар, шаг 2 — "RSI между 25 и 35" с окном 5 баров.
// RSI по барам: 28, 27, 29, 31, 33, 38. ANY открыт с самого первого бара
// (range-шаг true сразу), ALL — впервые на баре пробоя (31 -> 33); на
// следующем баре оба якоря ещё в окнах, гейт остаётся открыт.
func TestGateFireAllVsAnyOnRsiSequence(t *testing.T) {
	rsi := []float64{28, 27, 29, 31, 33, 38}
	bar0 := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	barAt := func(i int) time.Time { return bar0.Add(time.Duration(i) * time.Hour) }

	run := func(logic models.StepLogic) []int {
		cross := step("cross", logic, 1, models.ValidityBars)
		cross.Subscription.Priority = 1
		between := step("between", logic, 5, models.ValidityBars)
		between.Subscription.Priority = 2
		steps := []models.ActiveSubscription{cross, between}

		p := NewPlaybooks()
		var fired []int
		for i, v := range rsi {
			prev := v
			if i > 0 {
				prev = rsi[i-1]
			}
			p.Record("cross", barAt(i), i > 0 && prev <= 32 && v > 32)
			p.Record("between", barAt(i), v >= 25 && v <= 35)

			if p.GateFire(steps, func(models.ActiveSubscription) time.Time { return barAt(i) }) {
				fired = append(fired, i)
			}
		}
		return fired
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, run(models.LogicOR))
	assert.Equal(t, []int{4, 5}, run(models.LogicAND))
}

func TestPrune(t *testing.T) {
	p := NewPlaybooks()
	bar := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	p.Record("keep", bar, true)
	p.Record("drop", bar, true)
	p.Prune(map[string]bool{"keep": true})

	s := step("drop", models.LogicAND, 100, models.ValidityBars)
	assert.False(t, p.Satisfied(s, bar))
	s = step("keep", models.LogicAND, 100, models.ValidityBars)
	assert.True(t, p.Satisfied(s, bar))
}
