package dto

import (
	"datalabel-backend/internal/models"
)

// ==================== User DTOs ====================

// CreateUserRequest registers the caller's wallet
type CreateUserRequest struct {
	WalletAddress string      `json:"wallet_address" binding:"required"`
	Role          models.Role `json:"role" binding:"omitempty,oneof=PROVIDER WORKER"`
}

// SetRoleRequest role selection
type SetRoleRequest struct {
	Role models.Role `json:"role" binding:"required,oneof=PROVIDER WORKER"`
}

// AdminSetRoleRequest administrative role change; an empty role clears it
type AdminSetRoleRequest struct {
	Role models.Role `json:"role" binding:"omitempty,oneof=PROVIDER WORKER"`
}

// BalanceResponse wallet balance on the ledger
type BalanceResponse struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
	Balance  string `json:"balance"`
}
