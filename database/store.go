package database

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"personalbank/models"
)

// Store хранилище счетов, учетных данных и журнала операций
type Store interface {
	// CreateAccount сохраняет счет и учетные данные атомарно.
	// При занятом номере счета возвращает models.ErrDuplicateAccountNumber.
	CreateAccount(ctx context.Context, account *models.Account, credential *models.Credential) error
	GetAccount(ctx context.Context, accountNumber string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	UpdateAccountProfile(ctx context.Context, accountNumber string, profile models.Profile) error
	UpdateAccountStatus(ctx context.Context, accountNumber string, status models.AccountStatus) error
	GetCredential(ctx context.Context, accountNumber string) (*models.Credential, error)
	UpdateCredential(ctx context.Context, accountNumber, passwordHash string) error
	// ListTransactions возвращает записи журнала в порядке добавления
	ListTransactions(ctx context.Context, accountNumber string) ([]models.Transaction, error)
	// WithinTransaction блокирует перечисленные счета в порядке возрастания номера
	// и выполняет fn. Ошибка fn откатывает все изменения.
	WithinTransaction(ctx context.Context, accountNumbers []string, fn func(tx LedgerTx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// LedgerTx операции над заблокированными счетами внутри WithinTransaction
type LedgerTx interface {
	// Account возвращает снимок заблокированного счета или models.ErrAccountNotFound
	Account(accountNumber string) (*models.Account, error)
	UpdateBalance(accountNumber string, balance decimal.Decimal) error
	AppendTransaction(record *models.Transaction) error
	// LastTransaction возвращает последнюю запись журнала заблокированного счета
	// или nil, если операций не было
	LastTransaction(accountNumber string) (*models.Transaction, error)
}

// lockOrder убирает дубликаты и сортирует номера счетов, задавая единый порядок блокировок
func lockOrder(accountNumbers []string) []string {
	seen := make(map[string]struct{}, len(accountNumbers))
	keys := make([]string, 0, len(accountNumbers))
	for _, n := range accountNumbers {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		keys = append(keys, n)
	}
	sort.Strings(keys)
	return keys
}

func errNotLocked(accountNumber string) error {
	return fmt.Errorf("account %s is not locked in this transaction", accountNumber)
}
