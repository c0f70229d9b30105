package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"personalbank/models"
)

// RoutingKeyTransactionCommitted ключ маршрутизации событий о проведенных операциях
const RoutingKeyTransactionCommitted = "ledger.transaction.committed"

// TransactionCommittedEvent тело сообщения в RabbitMQ
type TransactionCommittedEvent struct {
	TransactionID uint64                   `json:"transaction_id"`
	AccountNumber string                   `json:"account_number"`
	Type          models.TransactionType   `json:"type"`
	Amount        string                   `json:"amount"`
	BalanceAfter  string                   `json:"balance_after"`
	TransferID    *string                  `json:"transfer_id,omitempty"`
	Counterparty  string                   `json:"counterparty,omitempty"`
	Direction     models.TransferDirection `json:"direction,omitempty"`
	OccurredAt    time.Time                `json:"occurred_at"`
}

// amqpChannel часть *amqp.Channel, нужная издателю
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// EventPublisher публикует события журнала в обменник RabbitMQ
type EventPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
}

var _ Notifier = (*EventPublisher)(nil)

// NewEventPublisher подключается к RabbitMQ и объявляет topic-обменник
func NewEventPublisher(url, exchange string) (*EventPublisher, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ошибка открытия канала RabbitMQ: %w", err)
	}

	p, err := newEventPublisher(ch, exchange)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newEventPublisher(ch amqpChannel, exchange string) (*EventPublisher, error) {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("ошибка объявления обменника %s: %w", exchange, err)
	}
	return &EventPublisher{channel: ch, exchange: exchange}, nil
}

// Notify публикует событие о проведенной операции
func (p *EventPublisher) Notify(ctx context.Context, event LedgerEvent) error {
	record := event.Record
	body, err := json.Marshal(TransactionCommittedEvent{
		TransactionID: record.ID,
		AccountNumber: record.AccountNumber,
		Type:          record.Type,
		Amount:        record.Amount.StringFixed(2),
		BalanceAfter:  record.BalanceAfter.StringFixed(2),
		TransferID:    record.TransferID,
		Counterparty:  record.Counterparty,
		Direction:     record.Direction,
		OccurredAt:    record.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("ошибка сериализации события: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, RoutingKeyTransactionCommitted, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    fmt.Sprintf("tx-%d", record.ID),
		Timestamp:    record.CreatedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("ошибка публикации события: %w", err)
	}
	return nil
}

// Close закрывает канал и соединение
func (p *EventPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Close(); err != nil {
		return err
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
