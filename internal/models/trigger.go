package models

import "time"

// TriggerRecord — append-only запись о срабатывании. Уникальный индекс по
// (subscription_id, bar_timestamp) в Postgres и есть гарантия
// exactly-once-per-bar: рестарт процесса и повторная оценка того же бара
// упираются в конфликт, а не создают дубль.
type TriggerRecord struct {
	TriggerID      string
	SubscriptionID string
	BarTimestamp   time.Time
	FiredAt        time.Time
	Snapshot       []byte
	// Published=false после вставки, true после успешной публикации в шину.
	// Незакрытые записи добирает reconcile-свип.
	Published bool
}

// TriggerEvent — сообщение в шину для исполнителей действий.
// Доставка at-least-once: потребитель обязан дедуплицировать по
// (subscription_id, bar_timestamp), если не терпит повторов.
type TriggerEvent struct {
	SubscriptionID string         `json:"subscription_id"`
	ConditionID    string         `json:"condition_id"`
	SubscriberType SubscriberType `json:"subscriber_type"`
	SubscriberID   string         `json:"subscriber_id"`
	ActionPayload  []byte         `json:"action_payload"`
	BarTimestamp   time.Time      `json:"bar_timestamp"`
	Snapshot       []byte         `json:"snapshot"`
}
