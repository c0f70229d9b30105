package services

import (
	"context"
	"errors"

	"personalbank/models"
)

// LedgerEvent зафиксированная операция вместе со снимком счета после нее
type LedgerEvent struct {
	Account models.Account
	Record  models.Transaction
}

// Notifier получает события после фиксации операции.
// Ошибка уведомления не откатывает операцию.
type Notifier interface {
	Notify(ctx context.Context, event LedgerEvent) error
}

// NopNotifier ничего не отправляет
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, LedgerEvent) error { return nil }

// MultiNotifier рассылает событие всем получателям
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, event LedgerEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
