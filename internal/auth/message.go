package auth

import (
	"fmt"
	"strings"

	"datalabel-backend/internal/apperrors"
)

// DefaultStatement first line of every sign-in message
const DefaultStatement = "Sign in to the Decentralized Data Labeling Platform"

// SignInMessage text a wallet signs to prove control of its key
type SignInMessage struct {
	Domain    string `json:"domain"`
	PublicKey string `json:"public_key"`
	Nonce     string `json:"nonce"`
	Statement string `json:"statement"`
}

// Prepare renders the exact bytes that are signed
func (m SignInMessage) Prepare() string {
	return fmt.Sprintf("%s\n\n%s wants you to sign in with your Solana account:\n%s\n\nNonce: %s",
		m.Statement, m.Domain, m.PublicKey, m.Nonce)
}

// ParseSignInMessage inverse of Prepare
func ParseSignInMessage(s string) (SignInMessage, error) {
	parts := strings.Split(s, "\n")
	// statement, "", header, pubkey, "", nonce
	if len(parts) != 6 || parts[1] != "" || parts[4] != "" {
		return SignInMessage{}, apperrors.FieldError("message", "not a sign-in message")
	}
	const headerSuffix = " wants you to sign in with your Solana account:"
	if !strings.HasSuffix(parts[2], headerSuffix) {
		return SignInMessage{}, apperrors.FieldError("message", "missing sign-in header")
	}
	if !strings.HasPrefix(parts[5], "Nonce: ") {
		return SignInMessage{}, apperrors.FieldError("message", "missing nonce")
	}
	return SignInMessage{
		Statement: parts[0],
		Domain:    strings.TrimSuffix(parts[2], headerSuffix),
		PublicKey: parts[3],
		Nonce:     strings.TrimPrefix(parts[5], "Nonce: "),
	}, nil
}
