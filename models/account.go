package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountStatus представляет статус счета
type AccountStatus string

const (
	AccountStatusActive      AccountStatus = "active"
	AccountStatusDeactivated AccountStatus = "deactivated"
)

// AccountNumberLength длина номера счета
const AccountNumberLength = 10

// Account представляет банковский счет клиента
type Account struct {
	ID            uint            `gorm:"primaryKey;autoIncrement" json:"-"`
	AccountNumber string          `gorm:"column:account_number;size:10;unique;not null" json:"account_number"`
	Name          string          `gorm:"column:name;not null" json:"name"`
	DOB           string          `gorm:"column:dob;not null" json:"dob"`
	City          string          `gorm:"column:city;not null" json:"city"`
	Address       string          `gorm:"column:address;not null" json:"address"`
	ContactNumber string          `gorm:"column:contact_number;size:10;not null" json:"contact_number"`
	Email         string          `gorm:"column:email;not null" json:"email"`
	Balance       decimal.Decimal `gorm:"column:balance;type:numeric(20,2);not null;default:0" json:"balance"`
	Status        AccountStatus   `gorm:"column:status;type:varchar(20);not null;default:'active'" json:"status"`
	CreatedAt     time.Time       `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// IsActive сообщает, доступны ли по счету операции с балансом
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// Profile набор изменяемых полей профиля
type Profile struct {
	Name    string
	City    string
	Address string
}
