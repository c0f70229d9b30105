package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"personalbank/database"
	"personalbank/models"
	"personalbank/utils"
)

// BalanceMismatch расхождение баланса счета с последней записью журнала
type BalanceMismatch struct {
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	TransactionID uint64          `json:"transaction_id"`
}

// ReconcileReport результат сверки
type ReconcileReport struct {
	StartedAt  time.Time         `json:"started_at"`
	Checked    int               `json:"checked"`
	Skipped    int               `json:"skipped"`
	Mismatches []BalanceMismatch `json:"mismatches"`
}

// reconcileLockKey ключ блокировки сверки между экземплярами сервиса
const reconcileLockKey = "ledger:reconcile"

// Locker выполняет функцию под распределенной блокировкой
type Locker interface {
	WithLock(ctx context.Context, key string, fn func() error) error
}

// ReconcileSchedulerService периодически сверяет балансы счетов с журналом операций
type ReconcileSchedulerService struct {
	store    database.Store
	logger   *zap.Logger
	cron     *cron.Cron
	schedule string
	timeout  time.Duration
	locker   Locker
}

// NewReconcileSchedulerService создает новый экземпляр ReconcileSchedulerService
func NewReconcileSchedulerService(store database.Store, logger *zap.Logger, schedule string) *ReconcileSchedulerService {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))

	return &ReconcileSchedulerService{
		store:    store,
		logger:   logger,
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		schedule: schedule,
		timeout:  5 * time.Minute,
	}
}

// SetLocker включает блокировку, чтобы сверку запускал только один экземпляр
func (s *ReconcileSchedulerService) SetLocker(locker Locker) {
	s.locker = locker
}

// Start регистрирует задание сверки и запускает планировщик
func (s *ReconcileSchedulerService) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return fmt.Errorf("ошибка регистрации задания сверки %q: %w", s.schedule, err)
	}
	s.logger.Info("scheduled reconcile job", zap.String("schedule", s.schedule))
	s.cron.Start()
	return nil
}

// Stop останавливает планировщик и ждет завершения текущего запуска
func (s *ReconcileSchedulerService) Stop() context.Context {
	return s.cron.Stop()
}

func (s *ReconcileSchedulerService) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	reconcile := func() error {
		_, err := s.Reconcile(ctx)
		return err
	}

	var err error
	if s.locker != nil {
		err = s.locker.WithLock(ctx, reconcileLockKey, reconcile)
	} else {
		err = reconcile()
	}

	switch {
	case errors.Is(err, database.ErrLockNotAcquired):
		s.logger.Info("reconcile skipped, another instance holds the lock")
	case err != nil:
		s.logger.Error("reconcile failed", zap.Error(err))
	}
}

// Reconcile сравнивает баланс каждого счета с BalanceAfter последней записи.
// Счета без операций пропускаются.
func (s *ReconcileSchedulerService) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{StartedAt: time.Now().UTC(), Mismatches: []BalanceMismatch{}}

	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении списка счетов: %w", err)
	}

	for _, listed := range accounts {
		number := listed.AccountNumber

		// баланс и последняя запись читаются под одной блокировкой счета,
		// чтобы параллельная операция не дала ложного расхождения
		var (
			account models.Account
			last    *models.Transaction
		)
		err := s.store.WithinTransaction(ctx, []string{number}, func(tx database.LedgerTx) error {
			current, err := tx.Account(number)
			if err != nil {
				return err
			}
			account = *current
			last, err = tx.LastTransaction(number)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("ошибка при чтении журнала счета %s: %w", number, err)
		}
		if last == nil {
			report.Skipped++
			continue
		}

		report.Checked++
		if !last.BalanceAfter.Equal(account.Balance) {
			mismatch := BalanceMismatch{
				AccountNumber: number,
				Balance:       account.Balance,
				BalanceAfter:  last.BalanceAfter,
				TransactionID: last.ID,
			}
			report.Mismatches = append(report.Mismatches, mismatch)
			s.logger.Error("balance does not match ledger",
				zap.String("account_number", mismatch.AccountNumber),
				zap.String("balance", mismatch.Balance.StringFixed(2)),
				zap.String("balance_after", mismatch.BalanceAfter.StringFixed(2)),
				zap.Uint64("transaction_id", mismatch.TransactionID),
			)
		}
	}

	utils.GetMetrics().RecordReconcile(len(report.Mismatches))
	s.logger.Info("reconcile completed",
		zap.Int("checked", report.Checked),
		zap.Int("skipped", report.Skipped),
		zap.Int("mismatches", len(report.Mismatches)),
	)
	return report, nil
}
