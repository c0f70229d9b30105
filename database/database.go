package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"personalbank/config"
	"personalbank/models"
)

// Database хранилище на PostgreSQL через GORM
type Database struct {
	DB *gorm.DB
}

var _ Store = (*Database)(nil)

// NewDatabase оборачивает готовое подключение GORM
func NewDatabase(db *gorm.DB) *Database {
	return &Database{DB: db}
}

// Connect устанавливает соединение с базой данных и выполняет миграции
func Connect(cfg *config.Config, log *zap.Logger) (*Database, error) {
	// Логгер GORM пишет через zap
	newLogger := logger.New(
		zap.NewStdLog(log.Named("gorm")),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN()), &gorm.Config{
		Logger:         newLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных: %w", err)
	}

	// Настраиваем пул соединений
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пула соединений: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Выполняем SQL миграции
	if err := RunMigrations(cfg.DB.MigrationsPath, cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("ошибка выполнения SQL миграций: %w", err)
	}

	log.Info("connected to the database", zap.String("host", cfg.DB.Host), zap.String("db", cfg.DB.DBName))

	return NewDatabase(db), nil
}

// RunMigrations выполняет SQL миграции из каталога migrationsPath
func RunMigrations(migrationsPath, databaseURL string) error {
	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	if err != nil {
		return fmt.Errorf("ошибка создания миграции: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка выполнения миграций: %w", err)
	}

	return nil
}

// Ping проверяет доступность базы данных
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close закрывает подключение к базе данных
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateAccount сохраняет счет и учетные данные в одной транзакции
func (d *Database) CreateAccount(ctx context.Context, account *models.Account, credential *models.Credential) error {
	return d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(account).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return models.ErrDuplicateAccountNumber
			}
			return fmt.Errorf("create account: %w", err)
		}
		if err := tx.Create(credential).Error; err != nil {
			return fmt.Errorf("create credential: %w", err)
		}
		return nil
	})
}

// GetAccount возвращает счет по номеру
func (d *Database) GetAccount(ctx context.Context, accountNumber string) (*models.Account, error) {
	var account models.Account
	err := d.DB.WithContext(ctx).Where("account_number = ?", accountNumber).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &account, nil
}

// ListAccounts возвращает все счета, упорядоченные по номеру
func (d *Database) ListAccounts(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	if err := d.DB.WithContext(ctx).Order("account_number").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// UpdateAccountProfile перезаписывает имя, город и адрес
func (d *Database) UpdateAccountProfile(ctx context.Context, accountNumber string, profile models.Profile) error {
	return d.updateAccount(ctx, accountNumber, map[string]interface{}{
		"name":    profile.Name,
		"city":    profile.City,
		"address": profile.Address,
	})
}

// UpdateAccountStatus меняет статус счета
func (d *Database) UpdateAccountStatus(ctx context.Context, accountNumber string, status models.AccountStatus) error {
	return d.updateAccount(ctx, accountNumber, map[string]interface{}{
		"status": string(status),
	})
}

func (d *Database) updateAccount(ctx context.Context, accountNumber string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	res := d.DB.WithContext(ctx).
		Model(&models.Account{}).
		Where("account_number = ?", accountNumber).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update account: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrAccountNotFound
	}
	return nil
}

// GetCredential возвращает учетные данные счета
func (d *Database) GetCredential(ctx context.Context, accountNumber string) (*models.Credential, error) {
	var credential models.Credential
	err := d.DB.WithContext(ctx).Where("account_number = ?", accountNumber).First(&credential).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &credential, nil
}

// UpdateCredential заменяет хеш пароля
func (d *Database) UpdateCredential(ctx context.Context, accountNumber, passwordHash string) error {
	res := d.DB.WithContext(ctx).
		Model(&models.Credential{}).
		Where("account_number = ?", accountNumber).
		Updates(map[string]interface{}{
			"password_hash": passwordHash,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("update credential: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrAccountNotFound
	}
	return nil
}

// ListTransactions возвращает журнал операций счета в хронологическом порядке
func (d *Database) ListTransactions(ctx context.Context, accountNumber string) ([]models.Transaction, error) {
	var records []models.Transaction
	err := d.DB.WithContext(ctx).
		Where("account_number = ?", accountNumber).
		Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return records, nil
}

// WithinTransaction блокирует строки счетов (SELECT ... FOR UPDATE) в порядке
// возрастания номера и выполняет fn внутри одной транзакции базы данных
func (d *Database) WithinTransaction(ctx context.Context, accountNumbers []string, fn func(tx LedgerTx) error) error {
	keys := lockOrder(accountNumbers)

	return d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var accounts []models.Account
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("account_number IN ?", keys).
			Order("account_number ASC").
			Find(&accounts).Error
		if err != nil {
			return fmt.Errorf("lock accounts: %w", err)
		}

		ltx := &gormLedgerTx{
			tx:        tx,
			requested: make(map[string]struct{}, len(keys)),
			accounts:  make(map[string]*models.Account, len(accounts)),
		}
		for _, k := range keys {
			ltx.requested[k] = struct{}{}
		}
		for i := range accounts {
			ltx.accounts[accounts[i].AccountNumber] = &accounts[i]
		}

		return fn(ltx)
	})
}

// gormLedgerTx реализация LedgerTx поверх транзакции GORM
type gormLedgerTx struct {
	tx        *gorm.DB
	requested map[string]struct{}
	accounts  map[string]*models.Account
}

func (t *gormLedgerTx) Account(accountNumber string) (*models.Account, error) {
	if _, ok := t.requested[accountNumber]; !ok {
		return nil, errNotLocked(accountNumber)
	}
	account, ok := t.accounts[accountNumber]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	cp := *account
	return &cp, nil
}

func (t *gormLedgerTx) UpdateBalance(accountNumber string, balance decimal.Decimal) error {
	account, ok := t.accounts[accountNumber]
	if !ok {
		return errNotLocked(accountNumber)
	}

	now := time.Now()
	err := t.tx.Model(&models.Account{}).
		Where("account_number = ?", accountNumber).
		Updates(map[string]interface{}{
			"balance":    balance,
			"updated_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}

	account.Balance = balance
	account.UpdatedAt = now
	return nil
}

func (t *gormLedgerTx) AppendTransaction(record *models.Transaction) error {
	if _, ok := t.accounts[record.AccountNumber]; !ok {
		return errNotLocked(record.AccountNumber)
	}
	if err := t.tx.Create(record).Error; err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

func (t *gormLedgerTx) LastTransaction(accountNumber string) (*models.Transaction, error) {
	if _, ok := t.accounts[accountNumber]; !ok {
		return nil, errNotLocked(accountNumber)
	}

	var records []models.Transaction
	err := t.tx.Where("account_number = ?", accountNumber).
		Order("id DESC").
		Limit(1).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("last transaction: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}
