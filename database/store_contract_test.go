package database

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personalbank/models"
	"personalbank/utils"
)

func newTestAccount(number string, balance int64) (*models.Account, *models.Credential) {
	hash, err := utils.HashPassword("password1")
	if err != nil {
		panic(err)
	}
	account := &models.Account{
		AccountNumber: number,
		Name:          "Test Holder",
		DOB:           "1990-01-01",
		City:          "Pune",
		Address:       "1 Main St",
		ContactNumber: "9876543210",
		Email:         "holder@example.com",
		Balance:       decimal.NewFromInt(balance),
		Status:        models.AccountStatusActive,
	}
	return account, &models.Credential{AccountNumber: number, PasswordHash: hash}
}

func mustCreate(t *testing.T, store Store, number string, balance int64) {
	t.Helper()
	account, credential := newTestAccount(number, balance)
	require.NoError(t, store.CreateAccount(context.Background(), account, credential))
}

// runStoreContract проверяет поведение, общее для всех реализаций Store
func runStoreContract(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		mustCreate(t, store, "1000000001", 2500)

		account, err := store.GetAccount(ctx, "1000000001")
		require.NoError(t, err)
		assert.Equal(t, "Test Holder", account.Name)
		assert.True(t, account.Balance.Equal(decimal.NewFromInt(2500)))
		assert.Equal(t, models.AccountStatusActive, account.Status)

		credential, err := store.GetCredential(ctx, "1000000001")
		require.NoError(t, err)
		assert.NotEmpty(t, credential.PasswordHash)
	})

	t.Run("duplicate account number", func(t *testing.T) {
		mustCreate(t, store, "1000000002", 2000)

		account, credential := newTestAccount("1000000002", 3000)
		err := store.CreateAccount(ctx, account, credential)
		assert.ErrorIs(t, err, models.ErrDuplicateAccountNumber)

		stored, err := store.GetAccount(ctx, "1000000002")
		require.NoError(t, err)
		assert.True(t, stored.Balance.Equal(decimal.NewFromInt(2000)))
	})

	t.Run("missing account", func(t *testing.T) {
		_, err := store.GetAccount(ctx, "1999999999")
		assert.ErrorIs(t, err, models.ErrAccountNotFound)

		_, err = store.GetCredential(ctx, "1999999999")
		assert.ErrorIs(t, err, models.ErrAccountNotFound)

		err = store.UpdateAccountStatus(ctx, "1999999999", models.AccountStatusDeactivated)
		assert.ErrorIs(t, err, models.ErrAccountNotFound)

		err = store.UpdateAccountProfile(ctx, "1999999999", models.Profile{Name: "x"})
		assert.ErrorIs(t, err, models.ErrAccountNotFound)

		err = store.UpdateCredential(ctx, "1999999999", "hash")
		assert.ErrorIs(t, err, models.ErrAccountNotFound)
	})

	t.Run("profile status and credential updates", func(t *testing.T) {
		mustCreate(t, store, "1000000003", 2000)

		require.NoError(t, store.UpdateAccountProfile(ctx, "1000000003", models.Profile{
			Name: "New Name", City: "Delhi", Address: "2 Side St",
		}))
		require.NoError(t, store.UpdateAccountStatus(ctx, "1000000003", models.AccountStatusDeactivated))

		account, err := store.GetAccount(ctx, "1000000003")
		require.NoError(t, err)
		assert.Equal(t, "New Name", account.Name)
		assert.Equal(t, "Delhi", account.City)
		assert.Equal(t, "2 Side St", account.Address)
		assert.Equal(t, models.AccountStatusDeactivated, account.Status)

		ok, err := VerifyCredential(ctx, store, "1000000003", "password1")
		require.NoError(t, err)
		assert.True(t, ok)

		hash, err := utils.HashPassword("password2")
		require.NoError(t, err)
		require.NoError(t, store.UpdateCredential(ctx, "1000000003", hash))

		ok, err = VerifyCredential(ctx, store, "1000000003", "password1")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = VerifyCredential(ctx, store, "1000000003", "password2")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = VerifyCredential(ctx, store, "1999999998", "password2")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("transaction commits balance and records", func(t *testing.T) {
		mustCreate(t, store, "1000000004", 2000)

		first := &models.Transaction{
			AccountNumber: "1000000004",
			Type:          models.TransactionTypeCredit,
			Amount:        decimal.NewFromInt(100),
			BalanceAfter:  decimal.NewFromInt(2100),
		}
		second := &models.Transaction{
			AccountNumber: "1000000004",
			Type:          models.TransactionTypeDebit,
			Amount:        decimal.NewFromInt(50),
			BalanceAfter:  decimal.NewFromInt(2050),
		}
		err := store.WithinTransaction(ctx, []string{"1000000004"}, func(tx LedgerTx) error {
			if err := tx.UpdateBalance("1000000004", decimal.NewFromInt(2100)); err != nil {
				return err
			}
			if err := tx.AppendTransaction(first); err != nil {
				return err
			}
			if err := tx.UpdateBalance("1000000004", decimal.NewFromInt(2050)); err != nil {
				return err
			}
			return tx.AppendTransaction(second)
		})
		require.NoError(t, err)

		account, err := store.GetAccount(ctx, "1000000004")
		require.NoError(t, err)
		assert.True(t, account.Balance.Equal(decimal.NewFromInt(2050)))

		records, err := store.ListTransactions(ctx, "1000000004")
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, models.TransactionTypeCredit, records[0].Type)
		assert.Equal(t, models.TransactionTypeDebit, records[1].Type)
		assert.Less(t, records[0].ID, records[1].ID)
		assert.False(t, records[0].CreatedAt.IsZero())
	})

	t.Run("transaction rolls back on error", func(t *testing.T) {
		mustCreate(t, store, "1000000005", 2000)
		boom := errors.New("boom")

		err := store.WithinTransaction(ctx, []string{"1000000005"}, func(tx LedgerTx) error {
			if err := tx.UpdateBalance("1000000005", decimal.NewFromInt(10)); err != nil {
				return err
			}
			if err := tx.AppendTransaction(&models.Transaction{
				AccountNumber: "1000000005",
				Type:          models.TransactionTypeDebit,
				Amount:        decimal.NewFromInt(1990),
				BalanceAfter:  decimal.NewFromInt(10),
			}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		account, err := store.GetAccount(ctx, "1000000005")
		require.NoError(t, err)
		assert.True(t, account.Balance.Equal(decimal.NewFromInt(2000)))

		records, err := store.ListTransactions(ctx, "1000000005")
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("transaction account lookup", func(t *testing.T) {
		mustCreate(t, store, "1000000006", 2000)

		err := store.WithinTransaction(ctx, []string{"1000000006", "1999999997"}, func(tx LedgerTx) error {
			account, err := tx.Account("1000000006")
			require.NoError(t, err)
			assert.True(t, account.Balance.Equal(decimal.NewFromInt(2000)))

			_, err = tx.Account("1999999997")
			assert.ErrorIs(t, err, models.ErrAccountNotFound)

			_, err = tx.Account("1000000001")
			assert.Error(t, err)
			assert.NotErrorIs(t, err, models.ErrAccountNotFound)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("last transaction", func(t *testing.T) {
		mustCreate(t, store, "1000000008", 2000)

		err := store.WithinTransaction(ctx, []string{"1000000008"}, func(tx LedgerTx) error {
			last, err := tx.LastTransaction("1000000008")
			require.NoError(t, err)
			assert.Nil(t, last)
			return nil
		})
		require.NoError(t, err)

		for _, balance := range []int64{2100, 2300} {
			balance := balance
			err := store.WithinTransaction(ctx, []string{"1000000008"}, func(tx LedgerTx) error {
				if err := tx.UpdateBalance("1000000008", decimal.NewFromInt(balance)); err != nil {
					return err
				}
				return tx.AppendTransaction(&models.Transaction{
					AccountNumber: "1000000008",
					Type:          models.TransactionTypeCredit,
					Amount:        decimal.NewFromInt(100),
					BalanceAfter:  decimal.NewFromInt(balance),
				})
			})
			require.NoError(t, err)
		}

		err = store.WithinTransaction(ctx, []string{"1000000008"}, func(tx LedgerTx) error {
			last, err := tx.LastTransaction("1000000008")
			require.NoError(t, err)
			require.NotNil(t, last)
			assert.True(t, last.BalanceAfter.Equal(decimal.NewFromInt(2300)))

			_, err = tx.LastTransaction("1000000001")
			assert.Error(t, err)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("concurrent read-modify-write is serialized", func(t *testing.T) {
		mustCreate(t, store, "1000000007", 2000)

		const workers = 20
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := store.WithinTransaction(ctx, []string{"1000000007"}, func(tx LedgerTx) error {
					account, err := tx.Account("1000000007")
					if err != nil {
						return err
					}
					return tx.UpdateBalance("1000000007", account.Balance.Add(decimal.NewFromInt(1)))
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		account, err := store.GetAccount(ctx, "1000000007")
		require.NoError(t, err)
		assert.True(t, account.Balance.Equal(decimal.NewFromInt(2000+workers)), "got %s", account.Balance)
	})

	t.Run("list accounts", func(t *testing.T) {
		accounts, err := store.ListAccounts(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, accounts)
		for i := 1; i < len(accounts); i++ {
			assert.Less(t, accounts[i-1].AccountNumber, accounts[i].AccountNumber)
		}
	})
}
