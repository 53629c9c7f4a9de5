package services

import (
	"context"
	"time"

	"datalabel-backend/internal/apperrors"
	"datalabel-backend/internal/auth"
	"datalabel-backend/internal/models"
	"datalabel-backend/internal/utils"

	"github.com/sirupsen/logrus"
)

// LoginResult session issued after a verified sign-in
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

// AuthService wallet sign-in: nonce challenge, signature check, session token
type AuthService struct {
	challenges *auth.ChallengeStore
	verifier   auth.Verifier
	tokens     *auth.TokenIssuer
	users      *UserService
	logger     *logrus.Logger
}

func NewAuthService(challenges *auth.ChallengeStore, verifier auth.Verifier, tokens *auth.TokenIssuer, users *UserService, logger *logrus.Logger) *AuthService {
	return &AuthService{
		challenges: challenges,
		verifier:   verifier,
		tokens:     tokens,
		users:      users,
		logger:     logger,
	}
}

// Nonce issues the sign-in message the wallet must sign
func (s *AuthService) Nonce(wallet string) (auth.Challenge, string, error) {
	wallet, err := utils.NormalizeWalletAddress(wallet)
	if err != nil {
		return auth.Challenge{}, "", apperrors.FieldError("publicKey", err.Error())
	}
	ch, err := s.challenges.Issue(wallet)
	if err != nil {
		return auth.Challenge{}, "", apperrors.Internal(err, "issue challenge")
	}
	return ch, ch.Message.Prepare(), nil
}

// Login verifies the signed message against the outstanding challenge
func (s *AuthService) Login(ctx context.Context, wallet, message, signature string) (*LoginResult, error) {
	wallet, err := utils.NormalizeWalletAddress(wallet)
	if err != nil {
		return nil, apperrors.FieldError("publicKey", err.Error())
	}
	msg, err := auth.ParseSignInMessage(message)
	if err != nil {
		return nil, err
	}
	if msg.PublicKey != wallet {
		return nil, apperrors.Unauthorized("message was issued for another wallet")
	}

	verified := s.challenges.Consume(wallet, msg.Nonce, func(expected auth.SignInMessage) bool {
		return expected.Prepare() == message && s.verifier.Verify(message, signature, wallet)
	})
	if !verified {
		s.logger.WithField("wallet", wallet).Warn("Sign-in rejected")
		return nil, apperrors.Unauthorized("invalid or expired sign-in signature")
	}

	user, err := s.users.EnsureUser(ctx, wallet)
	if err != nil {
		return nil, err
	}
	token, expires, err := s.tokens.IssueSession(wallet)
	if err != nil {
		return nil, apperrors.Internal(err, "issue session")
	}
	s.logger.WithFields(logrus.Fields{"wallet": wallet, "role": user.Role}).Info("🔑 Wallet signed in")
	return &LoginResult{Token: token, ExpiresAt: expires, User: user}, nil
}

// Authenticate resolves a session token into a principal with its current role
func (s *AuthService) Authenticate(ctx context.Context, token string) (auth.Principal, error) {
	claims, err := s.tokens.ValidateSession(token)
	if err != nil {
		return auth.Principal{}, apperrors.Unauthorized("invalid session token")
	}
	return s.users.Principal(ctx, claims.WalletAddress)
}

// SweepChallenges drops expired sign-in challenges
func (s *AuthService) SweepChallenges() int {
	return s.challenges.Sweep()
}
