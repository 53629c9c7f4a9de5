package utils

import (
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeWalletAddress(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	addr := base58.Encode(key)

	got, err := NormalizeWalletAddress("  " + addr + "\n")
	require.NoError(t, err)
	assert.Equal(t, addr, got)
	assert.True(t, IsWalletAddress(addr))

	// system program id is 32 zero bytes
	assert.True(t, IsWalletAddress("11111111111111111111111111111111"))
}

func TestNormalizeWalletAddressRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"0OIl",                              // characters outside the alphabet
		base58.Encode([]byte{1, 2, 3}),      // too short
		base58.Encode(make([]byte, 64)),     // signature sized
		"0x742d35Cc6634C0532925a3b0F26750C6", // hex wallet
	} {
		_, err := NormalizeWalletAddress(in)
		assert.Error(t, err, in)
	}
}
