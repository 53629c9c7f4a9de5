package ledger

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
)

// PublicKey 32-byte account address
type PublicKey [32]byte

// Signature 64-byte ed25519 transaction signature, doubles as the transaction id
type Signature [64]byte

// Blockhash recent blockhash a transaction is anchored to
type Blockhash [32]byte

// SystemProgram native transfer program
var SystemProgram = PublicKey{}

// ParsePublicKey decodes a base58 address
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("public key %q: %w", s, err)
	}
	if len(raw) != len(pk) {
		return pk, fmt.Errorf("public key %q: expected %d bytes, got %d", s, len(pk), len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// PublicKeyFromEd25519 address of an ed25519 key
func PublicKeyFromEd25519(pub ed25519.PublicKey) PublicKey {
	var pk PublicKey
	copy(pk[:], pub)
	return pk
}

// ParseSignature decodes a base58 transaction signature
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	raw, err := base58.Decode(s)
	if err != nil {
		return sig, fmt.Errorf("signature: %w", err)
	}
	if len(raw) != len(sig) {
		return sig, fmt.Errorf("signature: expected %d bytes, got %d", len(sig), len(raw))
	}
	copy(sig[:], raw)
	return sig, nil
}

func (s Signature) String() string {
	return base58.Encode(s[:])
}

// ParseBlockhash decodes a base58 blockhash
func ParseBlockhash(s string) (Blockhash, error) {
	var h Blockhash
	raw, err := base58.Decode(s)
	if err != nil {
		return h, fmt.Errorf("blockhash: %w", err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("blockhash: expected %d bytes, got %d", len(h), len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

func (h Blockhash) String() string {
	return base58.Encode(h[:])
}
