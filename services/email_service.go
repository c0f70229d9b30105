package services

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"personalbank/config"
	"personalbank/models"
)

// mailSender отправляет готовое письмо
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailService предоставляет методы для отправки email
type EmailService struct {
	dialer mailSender
	from   string
}

var _ Notifier = (*EmailService)(nil)

// NewEmailService создает новый экземпляр EmailService
func NewEmailService(cfg *config.Config) *EmailService {
	dialer := gomail.NewDialer(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Username,
		cfg.SMTP.Password,
	)

	return &EmailService{
		dialer: dialer,
		from:   cfg.SMTP.From,
	}
}

// SendEmail отправляет email
func (s *EmailService) SendEmail(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("ошибка отправки email: %w", err)
	}

	return nil
}

// Notify отправляет владельцу счета уведомление об операции
func (s *EmailService) Notify(_ context.Context, event LedgerEvent) error {
	if event.Account.Email == "" {
		return nil
	}
	return s.SendTransactionNotification(event.Account.Email, event.Record)
}

// SendTransactionNotification отправляет уведомление о транзакции
func (s *EmailService) SendTransactionNotification(to string, record models.Transaction) error {
	subject := "Уведомление о транзакции"
	body := fmt.Sprintf(`
		<h2>Уведомление о транзакции</h2>
		<p>Счет: %s</p>
		<p>Тип операции: %s</p>
		<p>Сумма: %s</p>
		<p>Остаток: %s</p>
		<p>Дата: %s</p>
	`,
		record.AccountNumber,
		operationTitle(record),
		record.Amount.StringFixed(2),
		record.BalanceAfter.StringFixed(2),
		record.CreatedAt.In(time.Local).Format("02.01.2006 15:04:05"),
	)

	return s.SendEmail(to, subject, body)
}

// operationTitle название операции для письма
func operationTitle(record models.Transaction) string {
	switch record.Type {
	case models.TransactionTypeCredit:
		return "Пополнение"
	case models.TransactionTypeDebit:
		return "Списание"
	case models.TransactionTypeTransfer:
		if record.Direction == models.TransferDirectionIn {
			return "Входящий перевод со счета " + record.Counterparty
		}
		return "Перевод на счет " + record.Counterparty
	}
	return string(record.Type)
}
