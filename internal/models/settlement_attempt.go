package models

import (
	"time"
)

// SettlementAttempt custody transfer submitted to the ledger but not yet recorded as paid.
// Removed in the same transaction that completes the task.
type SettlementAttempt struct {
	TaskID               string    `json:"task_id" gorm:"primaryKey;size:36"`
	Signature            string    `json:"signature" gorm:"size:128;not null"`
	Amount               int64     `json:"amount_lamports" gorm:"not null"`
	FromAddress          string    `json:"from_address" gorm:"size:64;not null"`
	ToAddress            string    `json:"to_address" gorm:"size:64;not null"`
	LastValidBlockHeight uint64    `json:"last_valid_block_height"`
	CreatedAt            time.Time `json:"created_at"`
}

// TableName specifies the table name for SettlementAttempt
func (SettlementAttempt) TableName() string {
	return "settlement_attempts"
}
