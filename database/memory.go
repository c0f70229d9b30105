package database

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"personalbank/models"
)

// MemoryStore хранилище в памяти процесса. Каждый счет защищен собственным
// мьютексом, который играет роль блокировки строки.
type MemoryStore struct {
	mu            sync.RWMutex
	accounts      map[string]*memoryAccount
	credentials   map[string]models.Credential
	transactions  []models.Transaction
	nextAccountID uint
	nextTxID      uint64
	now           func() time.Time
}

// memoryAccount: lock сериализует изменения счета, account читается и пишется под MemoryStore.mu
type memoryAccount struct {
	lock    sync.Mutex
	account models.Account
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore создает пустое хранилище в памяти
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:    make(map[string]*memoryAccount),
		credentials: make(map[string]models.Credential),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	return nil
}

// CreateAccount сохраняет счет и учетные данные атомарно
func (s *MemoryStore) CreateAccount(ctx context.Context, account *models.Account, credential *models.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.AccountNumber]; exists {
		return models.ErrDuplicateAccountNumber
	}

	now := s.now()
	s.nextAccountID++
	account.ID = s.nextAccountID
	account.CreatedAt = now
	account.UpdatedAt = now
	credential.CreatedAt = now
	credential.UpdatedAt = now

	s.accounts[account.AccountNumber] = &memoryAccount{account: *account}
	s.credentials[account.AccountNumber] = *credential
	return nil
}

// GetAccount возвращает копию счета
func (s *MemoryStore) GetAccount(ctx context.Context, accountNumber string) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.accounts[accountNumber]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	cp := entry.account
	return &cp, nil
}

// ListAccounts возвращает копии всех счетов, упорядоченные по номеру
func (s *MemoryStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	numbers := make([]string, 0, len(s.accounts))
	for n := range s.accounts {
		numbers = append(numbers, n)
	}
	numbers = lockOrder(numbers)
	accounts := make([]models.Account, 0, len(numbers))
	for _, n := range numbers {
		accounts = append(accounts, s.accounts[n].account)
	}
	s.mu.RUnlock()

	return accounts, nil
}

// UpdateAccountProfile перезаписывает имя, город и адрес
func (s *MemoryStore) UpdateAccountProfile(ctx context.Context, accountNumber string, profile models.Profile) error {
	return s.updateAccount(ctx, accountNumber, func(a *models.Account) {
		a.Name = profile.Name
		a.City = profile.City
		a.Address = profile.Address
	})
}

// UpdateAccountStatus меняет статус счета
func (s *MemoryStore) UpdateAccountStatus(ctx context.Context, accountNumber string, status models.AccountStatus) error {
	return s.updateAccount(ctx, accountNumber, func(a *models.Account) {
		a.Status = status
	})
}

func (s *MemoryStore) updateAccount(ctx context.Context, accountNumber string, apply func(a *models.Account)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entry := s.lookup(accountNumber)
	if entry == nil {
		return models.ErrAccountNotFound
	}

	entry.lock.Lock()
	defer entry.lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	apply(&entry.account)
	entry.account.UpdatedAt = s.now()
	return nil
}

// GetCredential возвращает учетные данные счета
func (s *MemoryStore) GetCredential(ctx context.Context, accountNumber string) (*models.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	credential, ok := s.credentials[accountNumber]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	return &credential, nil
}

// UpdateCredential заменяет хеш пароля
func (s *MemoryStore) UpdateCredential(ctx context.Context, accountNumber, passwordHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	credential, ok := s.credentials[accountNumber]
	if !ok {
		return models.ErrAccountNotFound
	}
	credential.PasswordHash = passwordHash
	credential.UpdatedAt = s.now()
	s.credentials[accountNumber] = credential
	return nil
}

// ListTransactions возвращает журнал операций счета в порядке добавления
func (s *MemoryStore) ListTransactions(ctx context.Context, accountNumber string) ([]models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []models.Transaction
	for _, r := range s.transactions {
		if r.AccountNumber == accountNumber {
			records = append(records, r)
		}
	}
	return records, nil
}

// WithinTransaction берет мьютексы счетов в порядке возрастания номера и
// применяет изменения только если fn завершилась без ошибки
func (s *MemoryStore) WithinTransaction(ctx context.Context, accountNumbers []string, fn func(tx LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	keys := lockOrder(accountNumbers)
	entries := make(map[string]*memoryAccount, len(keys))
	for _, k := range keys {
		if entry := s.lookup(k); entry != nil {
			entries[k] = entry
		}
	}

	for _, k := range keys {
		if entry, ok := entries[k]; ok {
			entry.lock.Lock()
			defer entry.lock.Unlock()
		}
	}

	tx := &memoryLedgerTx{
		store:     s,
		requested: make(map[string]struct{}, len(keys)),
		staged:    make(map[string]models.Account, len(entries)),
	}
	s.mu.RLock()
	for _, k := range keys {
		tx.requested[k] = struct{}{}
		if entry, ok := entries[k]; ok {
			tx.staged[k] = entry.account
		}
	}
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.commit(entries, tx)
	return nil
}

func (s *MemoryStore) commit(entries map[string]*memoryAccount, tx *memoryLedgerTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for n := range tx.dirty {
		entries[n].account.Balance = tx.staged[n].Balance
		entries[n].account.UpdatedAt = now
	}
	for _, record := range tx.pending {
		s.nextTxID++
		record.ID = s.nextTxID
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
		s.transactions = append(s.transactions, *record)
	}
}

func (s *MemoryStore) lookup(accountNumber string) *memoryAccount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[accountNumber]
}

// memoryLedgerTx накапливает изменения до фиксации
type memoryLedgerTx struct {
	store     *MemoryStore
	requested map[string]struct{}
	staged    map[string]models.Account
	dirty     map[string]struct{}
	pending   []*models.Transaction
}

func (t *memoryLedgerTx) Account(accountNumber string) (*models.Account, error) {
	if _, ok := t.requested[accountNumber]; !ok {
		return nil, errNotLocked(accountNumber)
	}
	account, ok := t.staged[accountNumber]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	return &account, nil
}

func (t *memoryLedgerTx) UpdateBalance(accountNumber string, balance decimal.Decimal) error {
	account, ok := t.staged[accountNumber]
	if !ok {
		return errNotLocked(accountNumber)
	}
	account.Balance = balance
	t.staged[accountNumber] = account
	if t.dirty == nil {
		t.dirty = make(map[string]struct{})
	}
	t.dirty[accountNumber] = struct{}{}
	return nil
}

func (t *memoryLedgerTx) AppendTransaction(record *models.Transaction) error {
	if _, ok := t.staged[record.AccountNumber]; !ok {
		return errNotLocked(record.AccountNumber)
	}
	t.pending = append(t.pending, record)
	return nil
}

func (t *memoryLedgerTx) LastTransaction(accountNumber string) (*models.Transaction, error) {
	if _, ok := t.staged[accountNumber]; !ok {
		return nil, errNotLocked(accountNumber)
	}
	for i := len(t.pending) - 1; i >= 0; i-- {
		if t.pending[i].AccountNumber == accountNumber {
			record := *t.pending[i]
			return &record, nil
		}
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for i := len(t.store.transactions) - 1; i >= 0; i-- {
		if t.store.transactions[i].AccountNumber == accountNumber {
			record := t.store.transactions[i]
			return &record, nil
		}
	}
	return nil, nil
}
