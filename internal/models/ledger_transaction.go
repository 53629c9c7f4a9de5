package models

import (
	"time"
)

// LedgerTransactionType value movement category
type LedgerTransactionType string

const (
	TransactionTaskPayment LedgerTransactionType = "TASK_PAYMENT"
	TransactionDeposit     LedgerTransactionType = "DEPOSIT"
	TransactionWithdrawal  LedgerTransactionType = "WITHDRAWAL"
)

// Valid reports whether t is a known type
func (t LedgerTransactionType) Valid() bool {
	switch t {
	case TransactionTaskPayment, TransactionDeposit, TransactionWithdrawal:
		return true
	}
	return false
}

// LedgerTransactionStatus confirmation state at the time the record was written
type LedgerTransactionStatus string

const (
	TransactionConfirmed LedgerTransactionStatus = "CONFIRMED"
	TransactionPending   LedgerTransactionStatus = "PENDING"
)

// ManualApprovalSignature recorded when a payment was settled outside the ledger
const ManualApprovalSignature = "manual_approval"

// LedgerTransaction append-only record of value movement
type LedgerTransaction struct {
	ID          string                  `json:"id" gorm:"primaryKey;size:36"`
	Type        LedgerTransactionType   `json:"type" gorm:"size:32;index;not null"`
	Amount      int64                   `json:"amount_lamports" gorm:"not null"`
	Status      LedgerTransactionStatus `json:"status" gorm:"size:16;not null"`
	FromAddress string                  `json:"from_address" gorm:"size:64;index;not null"`
	ToAddress   string                  `json:"to_address" gorm:"size:64;index;not null"`
	Signature   string                  `json:"signature" gorm:"size:128;index;not null"`
	TaskID      string                  `json:"task_id,omitempty" gorm:"size:36;index"`
	Description string                  `json:"description" gorm:"type:text"`
	CreatedAt   time.Time               `json:"created_at" gorm:"index"`
}

// TableName specifies the table name for LedgerTransaction
func (LedgerTransaction) TableName() string {
	return "ledger_transactions"
}
