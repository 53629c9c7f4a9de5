package auth

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

const defaultMaxAttempts = 5

// Challenge pending sign-in for a wallet
type Challenge struct {
	Message     SignInMessage `json:"message"`
	ExpiresAt   time.Time     `json:"expires_at"`
	CreatedAt   time.Time     `json:"created_at"`
	Attempts    int           `json:"attempts"`
	MaxAttempts int           `json:"max_attempts"`
}

// ChallengeStore in-memory single-use nonces keyed by wallet
type ChallengeStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	domain     string
	statement  string
	now        func() time.Time
	challenges map[string]Challenge
}

// NewChallengeStore builds a challenge store issuing messages for domain
func NewChallengeStore(ttl time.Duration, domain string) *ChallengeStore {
	return &ChallengeStore{
		ttl:        ttl,
		domain:     domain,
		statement:  DefaultStatement,
		now:        time.Now,
		challenges: make(map[string]Challenge),
	}
}

// WithStatement overrides the first line of issued messages; empty keeps the default
func (s *ChallengeStore) WithStatement(statement string) *ChallengeStore {
	if statement != "" {
		s.statement = statement
	}
	return s
}

// Issue creates or replaces the challenge for a wallet
func (s *ChallengeStore) Issue(wallet string) (Challenge, error) {
	nonce, err := randomNonce()
	if err != nil {
		return Challenge{}, err
	}
	now := s.now()
	ch := Challenge{
		Message: SignInMessage{
			Domain:    s.domain,
			PublicKey: wallet,
			Nonce:     nonce,
			Statement: s.statement,
		},
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
		MaxAttempts: defaultMaxAttempts,
	}
	s.mu.Lock()
	s.challenges[wallet] = ch
	s.mu.Unlock()
	return ch, nil
}

// Consume runs check against the outstanding challenge. A successful check
// removes the challenge; failures count towards the attempt limit.
func (s *ChallengeStore) Consume(wallet, nonce string, check func(SignInMessage) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[wallet]
	if !ok {
		return false
	}
	if s.now().After(ch.ExpiresAt) {
		delete(s.challenges, wallet)
		return false
	}
	ch.Attempts++
	if ch.Attempts > ch.MaxAttempts {
		delete(s.challenges, wallet)
		return false
	}
	s.challenges[wallet] = ch
	if ch.Message.Nonce != nonce || !check(ch.Message) {
		return false
	}
	delete(s.challenges, wallet)
	return true
}

// Sweep drops expired challenges
func (s *ChallengeStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for wallet, ch := range s.challenges {
		if now.After(ch.ExpiresAt) {
			delete(s.challenges, wallet)
			removed++
		}
	}
	return removed
}

func randomNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
