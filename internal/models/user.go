package models

import (
	"time"
)

// Role marketplace role of a wallet
type Role string

const (
	RoleUnselected Role = ""
	RoleProvider   Role = "PROVIDER"
	RoleWorker     Role = "WORKER"
)

// Valid reports whether r is a selectable role
func (r Role) Valid() bool {
	return r == RoleProvider || r == RoleWorker
}

// User wallet identity
type User struct {
	WalletAddress string    `json:"wallet_address" gorm:"primaryKey;size:64"`
	Role          Role      `json:"role" gorm:"size:16;index"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}
