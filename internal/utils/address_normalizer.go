package utils

import (
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// WalletAddressLength decoded size of an ed25519 wallet public key
const WalletAddressLength = 32

// NormalizeWalletAddress trims whitespace and checks that s is a base58 encoded
// 32-byte public key. The canonical base58 encoding is returned.
func NormalizeWalletAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("wallet address is empty")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("wallet address %q is not base58: %w", s, err)
	}
	if len(raw) != WalletAddressLength {
		return "", fmt.Errorf("wallet address %q decodes to %d bytes, expected %d", s, len(raw), WalletAddressLength)
	}
	return base58.Encode(raw), nil
}

// IsWalletAddress reports whether s is a valid wallet address
func IsWalletAddress(s string) bool {
	_, err := NormalizeWalletAddress(s)
	return err == nil
}
