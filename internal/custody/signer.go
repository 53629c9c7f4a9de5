package custody

import (
	"crypto/ed25519"
	"fmt"

	"datalabel-backend/internal/ledger"
)

// Signer signs ledger transactions with the payer key. The key is not
// reachable from outside the package and is never serialized.
type Signer struct {
	key    ed25519.PrivateKey
	public ledger.PublicKey
}

// NewSigner wraps an in-memory key
func NewSigner(priv ed25519.PrivateKey) *Signer {
	return &Signer{
		key:    priv,
		public: ledger.PublicKeyFromEd25519(priv.Public().(ed25519.PublicKey)),
	}
}

// LoadSigner decrypts the key file at path
func LoadSigner(path string, passphrase []byte) (*Signer, error) {
	kf, err := ReadKeyFile(path)
	if err != nil {
		return nil, err
	}
	priv, err := kf.decrypt(passphrase)
	if err != nil {
		return nil, err
	}
	return NewSigner(priv), nil
}

// PublicKey payer address
func (s *Signer) PublicKey() ledger.PublicKey {
	return s.public
}

// SignTransaction fills the payer's signature slot
func (s *Signer) SignTransaction(tx *ledger.Transaction) error {
	if err := tx.Sign(s.key); err != nil {
		return fmt.Errorf("custody sign: %w", err)
	}
	return nil
}

// String never prints key material
func (s *Signer) String() string {
	return fmt.Sprintf("custody.Signer(%s)", s.public)
}

// GoString never prints key material
func (s *Signer) GoString() string {
	return s.String()
}
