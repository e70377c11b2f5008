package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"alert_engine/internal/models"
	"alert_engine/pkg/logger"

	"github.com/bytedance/sonic"
	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrNotConnected = errors.New("bus: not connected")

// Handler обрабатывает одно сообщение очереди. Ошибка — requeue.
type Handler func(ctx context.Context, event models.TriggerEvent) error

// Bus — соединение с RabbitMQ: один канал, durable-очереди,
// persistent-доставка. Дисциплина дедупа при повторах лежит на потребителе.
type Bus struct {
	url      string
	prefetch int

	mu       sync.RWMutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	declared map[string]struct{}
	closed   bool
}

func New(amqpURL string, prefetch int) *Bus {
	return &Bus{
		url:      amqpURL,
		prefetch: prefetch,
		declared: make(map[string]struct{}),
	}
}

func (b *Bus) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrNotConnected
	}
	if b.conn != nil && b.channel != nil {
		return nil
	}

	logger.Info("bus: connecting to %s", maskURL(b.url))
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("Bus.Connect: dial: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("Bus.Connect: channel: %w", err)
	}
	if b.prefetch > 0 {
		if err := channel.Qos(b.prefetch, 0, false); err != nil {
			channel.Close()
			conn.Close()
			return fmt.Errorf("Bus.Connect: qos: %w", err)
		}
	}

	b.conn = conn
	b.channel = channel
	b.declared = make(map[string]struct{})

	go func() {
		closeErr := <-conn.NotifyClose(make(chan *amqp.Error))
		if closeErr != nil {
			logger.Error("bus: connection lost: %v", closeErr)
		}
		b.mu.Lock()
		if b.conn == conn {
			b.conn = nil
			b.channel = nil
		}
		b.mu.Unlock()
	}()

	return nil
}

func (b *Bus) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.conn != nil && b.channel != nil && !b.closed
}

// getChannel лениво восстанавливает соединение: после обрыва вотчер
// NotifyClose обнуляет conn, и очередной Publish/Consume передёргивает
// Connect вместо вечного ErrNotConnected. После явного Close переподключения
// нет.
func (b *Bus) getChannel() (*amqp.Channel, error) {
	b.mu.RLock()
	ch, closed := b.channel, b.closed
	b.mu.RUnlock()

	if closed {
		return nil, ErrNotConnected
	}
	if ch != nil {
		return ch, nil
	}

	if err := b.Connect(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	ch = b.channel
	b.mu.RUnlock()
	if ch == nil {
		return nil, ErrNotConnected
	}
	return ch, nil
}

func (b *Bus) declareQueue(ch *amqp.Channel, queue string) error {
	b.mu.Lock()
	_, done := b.declared[queue]
	b.mu.Unlock()
	if done {
		return nil
	}
	_, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.declared[queue] = struct{}{}
	b.mu.Unlock()
	return nil
}

// Publish кладёт событие в durable-очередь persistent-сообщением.
func (b *Bus) Publish(ctx context.Context, queue string, event models.TriggerEvent) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Bus.Publish: %w", err)
		}
	}()

	ch, err := b.getChannel()
	if err != nil {
		return err
	}
	if err = b.declareQueue(ch, queue); err != nil {
		return err
	}

	body, err := sonic.Marshal(event)
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

// Consume читает очередь с ручным ack: ошибка обработчика — requeue,
// битый JSON дропается без requeue, чтобы не крутить яд по кругу.
func (b *Bus) Consume(ctx context.Context, queue string, handler Handler) error {
	ch, err := b.getChannel()
	if err != nil {
		return fmt.Errorf("Bus.Consume: %w", err)
	}
	if err := b.declareQueue(ch, queue); err != nil {
		return fmt.Errorf("Bus.Consume: %w", err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("Bus.Consume: %w", err)
	}

	logger.Info("bus: consuming %s", queue)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("Bus.Consume: %s: %w", queue, ErrNotConnected)
			}
			var event models.TriggerEvent
			if err := sonic.Unmarshal(d.Body, &event); err != nil {
				logger.Error("bus: %s: malformed message, dropped: %v", queue, err)
				_ = d.Nack(false, false)
				continue
			}
			if err := handler(ctx, event); err != nil {
				logger.Error("bus: %s: handler failed, requeue: %v", queue, err)
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if b.channel != nil {
		b.channel.Close()
		b.channel = nil
	}
	if b.conn != nil {
		if err := b.conn.Close(); err != nil {
			return fmt.Errorf("Bus.Close: %w", err)
		}
		b.conn = nil
	}
	logger.Info("bus: connection closed")
	return nil
}

func maskURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	if parsed.User != nil {
		if _, has := parsed.User.Password(); has {
			parsed.User = url.UserPassword(parsed.User.Username(), "***")
		}
	}
	return parsed.String()
}
