package models

import "time"

type SubscriberType string

const (
	SubscriberBot   SubscriberType = "bot"
	SubscriberAlert SubscriberType = "alert"
)

type StepLogic string

const (
	LogicAND StepLogic = "AND"
	LogicOR  StepLogic = "OR"
)

type ValidityUnit string

const (
	ValidityBars    ValidityUnit = "bars"
	ValiditySeconds ValidityUnit = "seconds"
)

type FireMode string

const (
	FireOneShot FireMode = "one_shot"
	FirePerBar  FireMode = "per_bar"
)

// Subscription — шаг плейбука подписчика. Все подписки одного
// (SubscriberType, SubscriberID) образуют один плейбук; шаги исполняются по
// возрастанию Priority. Никогда не удаляется физически — только Active=false,
// история триггеров должна оставаться проверяемой.
type Subscription struct {
	SubscriptionID string
	ConditionID    string
	SubscriberType SubscriberType
	SubscriberID   string
	// ActionPayload непрозрачен для движка, отдаётся исполнителям как есть.
	ActionPayload    []byte
	Priority         int
	Logic            StepLogic
	ValidityDuration int
	ValidityUnit     ValidityUnit
	FireMode         FireMode
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ActiveSubscription — строка выборки "активная подписка + её условие",
// которую батч-оценщик перечитывает из реестра каждый тик.
type ActiveSubscription struct {
	Subscription Subscription
	Condition    Condition
}
