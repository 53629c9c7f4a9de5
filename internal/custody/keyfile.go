// Package custody holds the platform payer key used for custody settlement.
// The key lives on disk encrypted with a scrypt-derived secretbox key and is
// only ever decrypted into a Signer, which never exposes it.
package custody

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const keyFileVersion = 1

// ScryptParams key derivation cost
type ScryptParams struct {
	N int `json:"n"`
	R int `json:"r"`
	P int `json:"p"`
}

// DefaultScryptParams interactive-login cost
var DefaultScryptParams = ScryptParams{N: 1 << 15, R: 8, P: 1}

// KeyFile encrypted payer key as stored on disk
type KeyFile struct {
	Version    int          `json:"version"`
	PublicKey  string       `json:"public_key"`
	Scrypt     ScryptParams `json:"scrypt"`
	Salt       []byte       `json:"salt"`
	Nonce      []byte       `json:"nonce"`
	Ciphertext []byte       `json:"ciphertext"`
}

var ErrWrongPassphrase = errors.New("custody: wrong passphrase or corrupted key file")

func deriveKey(passphrase []byte, salt []byte, p ScryptParams) (*[32]byte, error) {
	raw, err := scrypt.Key(passphrase, salt, p.N, p.R, p.P, 32)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// EncryptKey seals a private key under a passphrase
func EncryptKey(priv ed25519.PrivateKey, passphrase []byte, params ScryptParams) (*KeyFile, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("custody: private key must be %d bytes", ed25519.PrivateKeySize)
	}
	if len(passphrase) == 0 {
		return nil, errors.New("custody: empty passphrase")
	}
	kf := &KeyFile{
		Version:   keyFileVersion,
		PublicKey: base58.Encode(priv.Public().(ed25519.PublicKey)),
		Scrypt:    params,
		Salt:      make([]byte, 16),
		Nonce:     make([]byte, 24),
	}
	if _, err := io.ReadFull(rand.Reader, kf.Salt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(rand.Reader, kf.Nonce); err != nil {
		return nil, err
	}
	key, err := deriveKey(passphrase, kf.Salt, params)
	if err != nil {
		return nil, err
	}
	var nonce [24]byte
	copy(nonce[:], kf.Nonce)
	kf.Ciphertext = secretbox.Seal(nil, priv.Seed(), &nonce, key)
	return kf, nil
}

// decrypt opens the key file and checks it matches the recorded public key
func (kf *KeyFile) decrypt(passphrase []byte) (ed25519.PrivateKey, error) {
	if kf.Version != keyFileVersion {
		return nil, fmt.Errorf("custody: unsupported key file version %d", kf.Version)
	}
	if len(kf.Nonce) != 24 {
		return nil, ErrWrongPassphrase
	}
	key, err := deriveKey(passphrase, kf.Salt, kf.Scrypt)
	if err != nil {
		return nil, err
	}
	var nonce [24]byte
	copy(nonce[:], kf.Nonce)
	seed, ok := secretbox.Open(nil, kf.Ciphertext, &nonce, key)
	if !ok || len(seed) != ed25519.SeedSize {
		return nil, ErrWrongPassphrase
	}
	priv := ed25519.NewKeyFromSeed(seed)
	if base58.Encode(priv.Public().(ed25519.PublicKey)) != kf.PublicKey {
		return nil, ErrWrongPassphrase
	}
	return priv, nil
}

// WriteKeyFile stores the key file with owner-only permissions
func WriteKeyFile(path string, kf *KeyFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ReadKeyFile loads a key file without decrypting it
func ReadKeyFile(path string) (*KeyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	var kf KeyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}
	return &kf, nil
}
