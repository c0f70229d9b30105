package database

import (
	"context"
	"errors"

	"personalbank/models"
	"personalbank/utils"
)

// VerifyCredential сверяет пароль с сохраненным хешем.
// Для несуществующего счета возвращает false без ошибки.
func VerifyCredential(ctx context.Context, store Store, accountNumber, password string) (bool, error) {
	credential, err := store.GetCredential(ctx, accountNumber)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			return false, nil
		}
		return false, err
	}
	return utils.VerifyPassword(password, credential.PasswordHash), nil
}
