package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"personalbank/database"
	"personalbank/models"
	"personalbank/utils"
)

func TestReconcile_CleanLedger(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()
	a := openAccount(t, s, 5000)
	b := openAccount(t, s, 2000)
	openAccount(t, s, 2000)

	_, err := s.Credit(ctx, a, decimal.NewFromInt(100))
	require.NoError(t, err)
	_, err = s.Transfer(ctx, a, b, decimal.NewFromInt(300))
	require.NoError(t, err)

	report, err := NewReconcileSchedulerService(store, zap.NewNop(), "@every 1h").Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, report.Mismatches)
}

func TestReconcile_DetectsMismatch(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()
	a := openAccount(t, s, 5000)

	_, err := s.Credit(ctx, a, decimal.NewFromInt(100))
	require.NoError(t, err)

	// баланс меняется без записи в журнал
	err = store.WithinTransaction(ctx, []string{a}, func(tx database.LedgerTx) error {
		return tx.UpdateBalance(a, decimal.NewFromInt(1))
	})
	require.NoError(t, err)

	before := utils.GetMetrics().GetMetricsSnapshot()["reconcile_mismatches"].(int64)

	report, err := NewReconcileSchedulerService(store, zap.NewNop(), "@every 1h").Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, report.Mismatches, 1)
	assert.Equal(t, a, report.Mismatches[0].AccountNumber)
	assert.True(t, report.Mismatches[0].Balance.Equal(decimal.NewFromInt(1)))
	assert.True(t, report.Mismatches[0].BalanceAfter.Equal(decimal.NewFromInt(5100)))

	after := utils.GetMetrics().GetMetricsSnapshot()["reconcile_mismatches"].(int64)
	assert.Equal(t, before+1, after)
}

// creditAfterListStore проводит операцию сразу после чтения списка счетов
type creditAfterListStore struct {
	database.Store
	afterList func()
}

func (s *creditAfterListStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	accounts, err := s.Store.ListAccounts(ctx)
	if err == nil && s.afterList != nil {
		s.afterList()
	}
	return accounts, err
}

func TestReconcile_ConcurrentWriteIsNotMismatch(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()
	a := openAccount(t, s, 5000)

	_, err := s.Credit(ctx, a, decimal.NewFromInt(100))
	require.NoError(t, err)

	wrapped := &creditAfterListStore{Store: store, afterList: func() {
		_, err := s.Credit(ctx, a, decimal.NewFromInt(250))
		require.NoError(t, err)
	}}

	core, logs := observer.New(zap.ErrorLevel)
	report, err := NewReconcileSchedulerService(wrapped, zap.New(core), "@every 1h").Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Empty(t, report.Mismatches)
	assert.Zero(t, logs.Len())
	requireBalance(t, s, a, 5350)
}

func TestReconcileScheduler_RejectsBadSchedule(t *testing.T) {
	svc := NewReconcileSchedulerService(database.NewMemoryStore(), zap.NewNop(), "not a schedule")
	assert.Error(t, svc.Start())
}

func TestReconcileScheduler_StartStop(t *testing.T) {
	svc := NewReconcileSchedulerService(database.NewMemoryStore(), zap.NewNop(), "@every 1h")
	require.NoError(t, svc.Start())
	<-svc.Stop().Done()
}

type fakeLocker struct {
	keys []string
	busy bool
	err  error
}

func (l *fakeLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	l.keys = append(l.keys, key)
	if l.err != nil {
		return l.err
	}
	if l.busy {
		return fmt.Errorf("%w: %s", database.ErrLockNotAcquired, key)
	}
	return fn()
}

func TestReconcileScheduler_RunUsesLock(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	svc := NewReconcileSchedulerService(database.NewMemoryStore(), zap.New(core), "@every 1h")
	locker := &fakeLocker{}
	svc.SetLocker(locker)

	svc.run()
	assert.Equal(t, []string{"ledger:reconcile"}, locker.keys)
	assert.Equal(t, 1, logs.FilterMessage("reconcile completed").Len())

	locker.busy = true
	svc.run()
	assert.Equal(t, 1, logs.FilterMessage("reconcile completed").Len())
	assert.Equal(t, 1, logs.FilterMessage("reconcile skipped, another instance holds the lock").Len())
	assert.Zero(t, logs.FilterMessage("reconcile failed").Len())

	locker.busy = false
	locker.err = errors.New("dial tcp: connection refused")
	svc.run()
	assert.Equal(t, 1, logs.FilterMessage("reconcile failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("reconcile skipped, another instance holds the lock").Len())
}
