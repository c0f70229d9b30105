package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType представляет тип операции по счету
type TransactionType string

const (
	TransactionTypeCredit   TransactionType = "credit"
	TransactionTypeDebit    TransactionType = "debit"
	TransactionTypeTransfer TransactionType = "transfer"
)

// TransferDirection направление перевода относительно счета записи
type TransferDirection string

const (
	TransferDirectionOut TransferDirection = "out"
	TransferDirectionIn  TransferDirection = "in"
)

// Transaction неизменяемая запись журнала операций
type Transaction struct {
	ID            uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountNumber string            `gorm:"column:account_number;size:10;not null;index" json:"account_number"`
	Type          TransactionType   `gorm:"column:transaction_type;not null;size:20" json:"type"`
	Amount        decimal.Decimal   `gorm:"column:amount;type:numeric(20,2);not null" json:"amount"`
	BalanceAfter  decimal.Decimal   `gorm:"column:balance_after;type:numeric(20,2);not null" json:"balance_after"`
	TransferID    *string           `gorm:"column:transfer_id;type:uuid" json:"transfer_id,omitempty"`
	Counterparty  string            `gorm:"column:counterparty;size:10" json:"counterparty,omitempty"`
	Direction     TransferDirection `gorm:"column:direction;size:3" json:"direction,omitempty"`
	CreatedAt     time.Time         `gorm:"column:date;default:CURRENT_TIMESTAMP" json:"date"`
}

func (Transaction) TableName() string {
	return "transactions"
}
