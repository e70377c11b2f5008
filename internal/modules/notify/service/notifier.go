package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"alert_engine/internal/models"
	"alert_engine/pkg/logger"

	"github.com/bytedance/sonic"
	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const dedupeCap = 4096

// alertPayload — что кладут в action_payload подписки типа alert.
type alertPayload struct {
	ChatID  int64  `json:"chat_id"`
	Message string `json:"message"`
}

// Notifier — исполнитель очереди triggers.alert: шлёт уведомление в Telegram.
// Шина даёт at-least-once, поэтому повторы отсекаются по
// (subscription_id, bar_timestamp).
type Notifier struct {
	bot           *tgbot.BotAPI
	defaultChatID int64

	mu   sync.Mutex
	seen map[string]struct{}
}

func NewNotifier(token string, defaultChatID int64) (*Notifier, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("NewNotifier: %w", err)
	}
	return &Notifier{
		bot:           b,
		defaultChatID: defaultChatID,
		seen:          make(map[string]struct{}),
	}, nil
}

// Handle — обработчик сообщения шины. Ошибка отправки возвращается наружу,
// чтобы шина сделала requeue.
func (n *Notifier) Handle(_ context.Context, event models.TriggerEvent) error {
	key := event.SubscriptionID + "|" + event.BarTimestamp.UTC().Format(time.RFC3339)
	if n.alreadySeen(key) {
		logger.Info("notify: duplicate delivery skipped: %s", key)
		return nil
	}

	var payload alertPayload
	if len(event.ActionPayload) > 0 {
		// кривой payload не повод крутить сообщение по кругу
		_ = sonic.Unmarshal(event.ActionPayload, &payload)
	}
	chatID := payload.ChatID
	if chatID == 0 {
		chatID = n.defaultChatID
	}
	if chatID == 0 {
		logger.Error("notify: no chat for subscription %s, dropped", event.SubscriptionID)
		return nil
	}

	text := payload.Message
	if text == "" {
		text = fmt.Sprintf("🔔 Условие %s сработало", event.ConditionID)
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString(fmt.Sprintf("\nбар: %s", event.BarTimestamp.UTC().Format("2006-01-02 15:04")))
	if len(event.Snapshot) > 0 {
		b.WriteString(fmt.Sprintf("\nсрез: %s", event.Snapshot))
	}

	if _, err := n.bot.Send(tgbot.NewMessage(chatID, b.String())); err != nil {
		return fmt.Errorf("Notifier.Handle: send: %w", err)
	}
	n.markSeen(key)
	return nil
}

func (n *Notifier) alreadySeen(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.seen[key]
	return ok
}

func (n *Notifier) markSeen(key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	// грубая защита от роста: старьё дешевле забыть, чем хранить вечно
	if len(n.seen) >= dedupeCap {
		n.seen = make(map[string]struct{})
	}
	n.seen[key] = struct{}{}
}
