package dto

import (
	"time"

	"datalabel-backend/internal/models"
)

// ==================== Auth DTOs ====================

// NonceResponse sign-in challenge for a wallet
type NonceResponse struct {
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"` // exact text the wallet must sign
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginRequest signed sign-in message
type LoginRequest struct {
	PublicKey string `json:"publicKey" binding:"required"` // base58 wallet address
	Message   string `json:"message" binding:"required"`
	Signature string `json:"signature" binding:"required"` // base58 ed25519 signature over message
}

// LoginResponse session issued after sign-in
type LoginResponse struct {
	Success   bool         `json:"success"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// AdminLoginRequest administrator login
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code" binding:"required,len=6,numeric"`
}

// AdminLoginResponse administrator login response
type AdminLoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}
