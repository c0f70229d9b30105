package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Credential хранит хеш пароля владельца счета (один к одному со счетом)
type Credential struct {
	AccountNumber string    `gorm:"column:account_number;primaryKey;size:10"`
	PasswordHash  string    `gorm:"column:password_hash;not null;size:100"`
	CreatedAt     time.Time `gorm:"column:created_at;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time `gorm:"column:updated_at;default:CURRENT_TIMESTAMP"`
}

func (Credential) TableName() string {
	return "credentials"
}

// BeforeCreate хук для проверки перед созданием
func (c *Credential) BeforeCreate(tx *gorm.DB) error {
	if len(c.AccountNumber) != AccountNumberLength {
		return errors.New("credential account number must be 10 digits")
	}
	if c.PasswordHash == "" {
		return errors.New("credential password hash is required")
	}
	return nil
}
