package auth

import (
	"datalabel-backend/internal/models"
)

// Principal authenticated caller. The role is always loaded from the user
// store at request time; nothing a client sends can set it.
type Principal struct {
	WalletAddress string
	Role          models.Role
}

// IsProvider reports whether the caller holds the provider role
func (p Principal) IsProvider() bool {
	return p.Role == models.RoleProvider
}

// IsWorker reports whether the caller holds the worker role
func (p Principal) IsWorker() bool {
	return p.Role == models.RoleWorker
}

// Authenticated reports whether a wallet is attached
func (p Principal) Authenticated() bool {
	return p.WalletAddress != ""
}
