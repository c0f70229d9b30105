package models

import (
	"errors"
	"fmt"
)

var (
	// ErrAccountNotFound счет с указанным номером не существует
	ErrAccountNotFound = errors.New("account not found")
	// ErrInsufficientFunds на счете недостаточно средств
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrDuplicateAccountNumber номер счета уже занят, нужен новый
	ErrDuplicateAccountNumber = errors.New("duplicate account number")
	// ErrAuthenticationFailed неверный номер счета или пароль
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrAccountDeactivated операции с балансом по закрытому счету запрещены
	ErrAccountDeactivated = errors.New("account is deactivated")
)

// ValidationError ошибка проверки входных данных с указанием поля
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError создает ошибку валидации поля
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
