package auth

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"
)

// Verifier checks a detached signature over message by publicKey
type Verifier interface {
	Verify(message, signature, publicKey string) bool
}

// Ed25519Verifier verifies base58 encoded ed25519 signatures and keys
type Ed25519Verifier struct{}

// NewEd25519Verifier create verifier
func NewEd25519Verifier() *Ed25519Verifier {
	return &Ed25519Verifier{}
}

// Verify returns false for any malformed key or signature
func (Ed25519Verifier) Verify(message, signature, publicKey string) bool {
	pub, err := base58.Decode(publicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := base58.Decode(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), []byte(message), sig)
}
