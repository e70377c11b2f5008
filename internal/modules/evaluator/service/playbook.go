package service

import (
	"sort"
	"time"

	"alert_engine/internal/helper"
	"alert_engine/internal/models"
)

// stepState — якорь валидности шага: бар, на котором шаг в последний раз
// оценился в true.
type stepState struct {
	lastTrueBar time.Time
	hasTrue     bool
}

// Playbooks хранит состояния шагов между тиками. Живёт полем оценщика и
// передаётся явно — никакого модульного синглтона.
type Playbooks struct {
	states map[string]stepState // subscriptionID -> state
}

func NewPlaybooks() *Playbooks {
	return &Playbooks{states: make(map[string]stepState)}
}

// Record фиксирует результат оценки шага на баре bar.
func (p *Playbooks) Record(subscriptionID string, bar time.Time, ok bool) {
	if !ok {
		return
	}
	p.states[subscriptionID] = stepState{lastTrueBar: bar, hasTrue: true}
}

// validityBars переводит окно валидности шага в бары; секунды — через длину
// бара таймфрейма условия.
func validityBars(sub models.Subscription, tf models.Timeframe) int {
	if sub.ValidityUnit == models.ValiditySeconds {
		barSec := int(helper.TFDuration(tf).Seconds())
		if barSec <= 0 {
			return 0
		}
		return sub.ValidityDuration / barSec
	}
	return sub.ValidityDuration
}

// Satisfied: шаг "сейчас удовлетворён", если был true не дальше окна
// валидности от текущего бара. Это и позволяет условию, сработавшему три бара
// назад, участвовать в сегодняшнем гейте.
func (p *Playbooks) Satisfied(as models.ActiveSubscription, currentBar time.Time) bool {
	st, ok := p.states[as.Subscription.SubscriptionID]
	if !ok || !st.hasTrue {
		return false
	}
	return helper.BarsBetween(st.lastTrueBar, currentBar, as.Condition.Timeframe) <= validityBars(as.Subscription, as.Condition.Timeframe)
}

// GateFire решает "стреляет ли плейбук" по всем его шагам сразу (атомарно,
// после полной оценки). AND-шаги должны быть удовлетворены все; если есть
// OR-шаги — хотя бы один из них. Плейбук из одних AND — это ALL,
// из одних OR — ANY.
func (p *Playbooks) GateFire(steps []models.ActiveSubscription, barFor func(models.ActiveSubscription) time.Time) bool {
	if len(steps) == 0 {
		return false
	}

	ordered := make([]models.ActiveSubscription, len(steps))
	copy(ordered, steps)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Subscription.Priority < ordered[j].Subscription.Priority
	})

	hasOR, orOK := false, false
	for _, step := range ordered {
		sat := p.Satisfied(step, barFor(step))
		switch step.Subscription.Logic {
		case models.LogicOR:
			hasOR = true
			if sat {
				orOK = true
			}
		default: // AND
			if !sat {
				return false
			}
		}
	}
	if hasOR && !orOK {
		return false
	}
	return true
}

// Prune выбрасывает состояния подписок, которых больше нет среди активных.
func (p *Playbooks) Prune(active map[string]bool) {
	for id := range p.states {
		if !active[id] {
			delete(p.states, id)
		}
	}
}
