package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"personalbank/models"
)

func sampleEvent() LedgerEvent {
	transferID := "6f1c1f55-3d0b-4c5e-9d53-7f0a4c1b2e11"
	return LedgerEvent{
		Account: models.Account{AccountNumber: "1000000001", Email: "holder@example.com"},
		Record: models.Transaction{
			ID:            42,
			AccountNumber: "1000000001",
			Type:          models.TransactionTypeTransfer,
			Amount:        decimal.RequireFromString("250.5"),
			BalanceAfter:  decimal.RequireFromString("1749.5"),
			TransferID:    &transferID,
			Counterparty:  "1000000002",
			Direction:     models.TransferDirectionOut,
			CreatedAt:     time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		},
	}
}

type fakeSender struct {
	messages []*gomail.Message
	err      error
}

func (f *fakeSender) DialAndSend(m ...*gomail.Message) error {
	f.messages = append(f.messages, m...)
	return f.err
}

func TestEmailService_Notify(t *testing.T) {
	sender := &fakeSender{}
	s := &EmailService{dialer: sender, from: "bank@example.com"}

	require.NoError(t, s.Notify(context.Background(), sampleEvent()))
	require.Len(t, sender.messages, 1)
	assert.Equal(t, []string{"holder@example.com"}, sender.messages[0].GetHeader("To"))
	assert.Equal(t, []string{"bank@example.com"}, sender.messages[0].GetHeader("From"))
}

func TestEmailService_SkipsAccountsWithoutEmail(t *testing.T) {
	sender := &fakeSender{}
	s := &EmailService{dialer: sender, from: "bank@example.com"}

	event := sampleEvent()
	event.Account.Email = ""
	require.NoError(t, s.Notify(context.Background(), event))
	assert.Empty(t, sender.messages)
}

func TestEmailService_WrapsSendError(t *testing.T) {
	smtpErr := errors.New("connection refused")
	s := &EmailService{dialer: &fakeSender{err: smtpErr}, from: "bank@example.com"}

	err := s.Notify(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, smtpErr)
}

func TestOperationTitle(t *testing.T) {
	event := sampleEvent()
	assert.Equal(t, "Перевод на счет 1000000002", operationTitle(event.Record))

	event.Record.Direction = models.TransferDirectionIn
	assert.Equal(t, "Входящий перевод со счета 1000000002", operationTitle(event.Record))

	assert.Equal(t, "Пополнение", operationTitle(models.Transaction{Type: models.TransactionTypeCredit}))
	assert.Equal(t, "Списание", operationTitle(models.Transaction{Type: models.TransactionTypeDebit}))
}

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	declared   []string
	published  []published
	declareErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.declared = append(f.declared, name+":"+kind)
	return f.declareErr
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestEventPublisher_Notify(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newEventPublisher(ch, "ledger.events")
	require.NoError(t, err)
	assert.Equal(t, []string{"ledger.events:topic"}, ch.declared)

	require.NoError(t, p.Notify(context.Background(), sampleEvent()))
	require.Len(t, ch.published, 1)

	msg := ch.published[0]
	assert.Equal(t, "ledger.events", msg.exchange)
	assert.Equal(t, RoutingKeyTransactionCommitted, msg.key)
	assert.Equal(t, "application/json", msg.msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.msg.DeliveryMode)
	assert.Equal(t, "tx-42", msg.msg.MessageId)

	var body TransactionCommittedEvent
	require.NoError(t, json.Unmarshal(msg.msg.Body, &body))
	assert.Equal(t, uint64(42), body.TransactionID)
	assert.Equal(t, "250.50", body.Amount)
	assert.Equal(t, "1749.50", body.BalanceAfter)
	assert.Equal(t, "1000000002", body.Counterparty)
	assert.Equal(t, models.TransferDirectionOut, body.Direction)
	require.NotNil(t, body.TransferID)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestEventPublisher_DeclareFailure(t *testing.T) {
	_, err := newEventPublisher(&fakeChannel{declareErr: errors.New("access refused")}, "ledger.events")
	assert.Error(t, err)
}

func TestMultiNotifier(t *testing.T) {
	first := &recordingNotifier{}
	failing := &recordingNotifier{err: errors.New("broker unavailable")}
	last := &recordingNotifier{}

	err := MultiNotifier{first, failing, last}.Notify(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, failing.err)
	assert.Len(t, first.events, 1)
	assert.Len(t, last.events, 1)

	assert.NoError(t, MultiNotifier{}.Notify(context.Background(), sampleEvent()))
	assert.NoError(t, NopNotifier{}.Notify(context.Background(), sampleEvent()))
}
