package custody

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"datalabel-backend/internal/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = ScryptParams{N: 1 << 10, R: 8, P: 1}

func TestKeyFileRoundTrip(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	kf, err := EncryptKey(priv, []byte("correct horse"), testParams)
	require.NoError(t, err)
	assert.NotContains(t, string(kf.Ciphertext), string(priv.Seed()))

	path := filepath.Join(t.TempDir(), "payer.json")
	require.NoError(t, WriteKeyFile(path, kf))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	signer, err := LoadSigner(path, []byte("correct horse"))
	require.NoError(t, err)
	assert.Equal(t, ledger.PublicKeyFromEd25519(priv.Public().(ed25519.PublicKey)), signer.PublicKey())
	assert.Equal(t, kf.PublicKey, signer.PublicKey().String())

	_, err = LoadSigner(path, []byte("wrong"))
	assert.ErrorIs(t, err, ErrWrongPassphrase)
}

func TestEncryptKeyValidation(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	_, err = EncryptKey(priv, nil, testParams)
	assert.Error(t, err)
	_, err = EncryptKey(priv[:10], []byte("x"), testParams)
	assert.Error(t, err)
}

func TestSignerSignsAndHidesKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	signer := NewSigner(priv)

	to := ledger.PublicKey{3}
	msg, err := ledger.NewMessage(signer.PublicKey(), []ledger.Instruction{
		ledger.TransferInstruction(signer.PublicKey(), to, 10),
	}, ledger.Blockhash{1})
	require.NoError(t, err)
	tx := ledger.NewTransaction(msg)
	require.NoError(t, signer.SignTransaction(tx))

	pk := signer.PublicKey()
	assert.True(t, ed25519.Verify(ed25519.PublicKey(pk[:]), msg.Serialize(), tx.Signatures[0][:]))

	printed := fmt.Sprintf("%v %+v %#v", signer, signer, signer)
	assert.NotContains(t, printed, fmt.Sprintf("%x", priv.Seed()))
	assert.Contains(t, printed, pk.String())
}
