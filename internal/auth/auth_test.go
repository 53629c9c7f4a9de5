package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) (string, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return base58.Encode(pub), priv
}

func sign(priv ed25519.PrivateKey, msg string) string {
	return base58.Encode(ed25519.Sign(priv, []byte(msg)))
}

func TestSignInMessagePrepare(t *testing.T) {
	m := SignInMessage{
		Domain:    "label.example",
		PublicKey: "PubKey111",
		Nonce:     "42",
		Statement: DefaultStatement,
	}
	want := "Sign in to the Decentralized Data Labeling Platform\n\n" +
		"label.example wants you to sign in with your Solana account:\n" +
		"PubKey111\n\nNonce: 42"
	assert.Equal(t, want, m.Prepare())

	parsed, err := ParseSignInMessage(want)
	require.NoError(t, err)
	assert.Equal(t, m, parsed)

	_, err = ParseSignInMessage("hello")
	assert.Error(t, err)
}

func TestEd25519Verifier(t *testing.T) {
	v := NewEd25519Verifier()
	pub, priv := newKey(t)
	otherPub, _ := newKey(t)
	msg := "sign me"
	sig := sign(priv, msg)

	assert.True(t, v.Verify(msg, sig, pub))
	assert.False(t, v.Verify("sign me!", sig, pub))
	assert.False(t, v.Verify(msg, sig, otherPub))
	assert.False(t, v.Verify(msg, "not-base58-0OIl", pub))
	assert.False(t, v.Verify(msg, base58.Encode([]byte{1, 2, 3}), pub))
	assert.False(t, v.Verify(msg, sig, base58.Encode([]byte{1, 2, 3})))
}

func TestChallengeStoreSingleUse(t *testing.T) {
	store := NewChallengeStore(time.Minute, "label.example")
	pub, priv := newKey(t)
	v := NewEd25519Verifier()

	ch, err := store.Issue(pub)
	require.NoError(t, err)
	assert.Equal(t, pub, ch.Message.PublicKey)
	sig := sign(priv, ch.Message.Prepare())

	check := func(m SignInMessage) bool { return v.Verify(m.Prepare(), sig, pub) }
	assert.False(t, store.Consume(pub, "wrong-nonce", check))
	assert.True(t, store.Consume(pub, ch.Message.Nonce, check))
	// replay
	assert.False(t, store.Consume(pub, ch.Message.Nonce, check))
}

func TestChallengeStoreExpiryAndAttempts(t *testing.T) {
	store := NewChallengeStore(time.Minute, "d")
	now := time.Now()
	store.now = func() time.Time { return now }

	ch, err := store.Issue("w1")
	require.NoError(t, err)
	ok := func(SignInMessage) bool { return true }
	bad := func(SignInMessage) bool { return false }

	for i := 0; i < defaultMaxAttempts; i++ {
		assert.False(t, store.Consume("w1", ch.Message.Nonce, bad))
	}
	// limit reached, even a valid check fails and the challenge is gone
	assert.False(t, store.Consume("w1", ch.Message.Nonce, ok))

	ch, err = store.Issue("w2")
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, store.Sweep())
	assert.False(t, store.Consume("w2", ch.Message.Nonce, ok))
}

func TestTokenIssuerSession(t *testing.T) {
	issuer := NewTokenIssuer("secret", "datalabel-backend", time.Hour)
	token, expires, err := issuer.IssueSession("wallet-1")
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	claims, err := issuer.ValidateSession(token)
	require.NoError(t, err)
	assert.Equal(t, "wallet-1", claims.WalletAddress)

	_, err = NewTokenIssuer("other", "datalabel-backend", time.Hour).ValidateSession(token)
	assert.Error(t, err)

	_, err = issuer.ValidateAdmin(token)
	assert.Error(t, err)
}

func TestTokenIssuerExpired(t *testing.T) {
	issuer := NewTokenIssuer("secret", "datalabel-backend", time.Minute)
	token, _, err := issuer.IssueSession("wallet-1")
	require.NoError(t, err)

	issuer.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = issuer.ValidateSession(token)
	assert.Error(t, err)
}

func TestTokenIssuerAdmin(t *testing.T) {
	issuer := NewTokenIssuer("admin-secret", "datalabel-backend", time.Hour)
	token, err := issuer.IssueAdmin("admin")
	require.NoError(t, err)

	claims, err := issuer.ValidateAdmin(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)

	_, err = issuer.ValidateSession(token)
	assert.Error(t, err)
}
