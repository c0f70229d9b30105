package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

var (
	accountNumberMin   = big.NewInt(1_000_000_000)
	accountNumberRange = big.NewInt(9_000_000_000)
)

// GenerateAccountNumber генерирует 10-значный номер счета без ведущего нуля
func GenerateAccountNumber() (string, error) {
	n, err := rand.Int(rand.Reader, accountNumberRange)
	if err != nil {
		return "", fmt.Errorf("failed to generate account number: %w", err)
	}
	return n.Add(n, accountNumberMin).String(), nil
}

// HashPassword создает bcrypt-хеш пароля
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// VerifyPassword проверяет пароль
func VerifyPassword(password, hashedPassword string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}
