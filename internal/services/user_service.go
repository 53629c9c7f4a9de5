package services

import (
	"context"

	"datalabel-backend/internal/apperrors"
	"datalabel-backend/internal/auth"
	"datalabel-backend/internal/models"
	"datalabel-backend/internal/repository"
	"datalabel-backend/internal/utils"

	"github.com/sirupsen/logrus"
)

// UserService wallet identities and their marketplace role
type UserService struct {
	store  repository.UserRepository
	logger *logrus.Logger
}

func NewUserService(store repository.UserRepository, logger *logrus.Logger) *UserService {
	return &UserService{store: store, logger: logger}
}

// Principal resolves the caller's role from the store. Unknown wallets are
// authenticated but have no role.
func (s *UserService) Principal(ctx context.Context, wallet string) (auth.Principal, error) {
	if wallet == "" {
		return auth.Principal{}, apperrors.Unauthorized("authentication required")
	}
	user, err := s.store.GetUser(ctx, wallet)
	if apperrors.Is(err, apperrors.KindNotFound) {
		return auth.Principal{WalletAddress: wallet, Role: models.RoleUnselected}, nil
	}
	if err != nil {
		return auth.Principal{}, err
	}
	return auth.Principal{WalletAddress: wallet, Role: user.Role}, nil
}

// EnsureUser returns the user, creating it with no role on first sign-in
func (s *UserService) EnsureUser(ctx context.Context, wallet string) (*models.User, error) {
	user, err := s.store.GetUser(ctx, wallet)
	if err == nil {
		return user, nil
	}
	if !apperrors.Is(err, apperrors.KindNotFound) {
		return nil, err
	}
	user = &models.User{WalletAddress: wallet, Role: models.RoleUnselected}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if apperrors.Is(err, apperrors.KindConflict) {
			return s.store.GetUser(ctx, wallet)
		}
		return nil, err
	}
	s.logger.WithField("wallet", wallet).Info("👤 New wallet registered")
	return user, nil
}

// CreateUser registers the caller's own wallet with a role
func (s *UserService) CreateUser(ctx context.Context, p auth.Principal, wallet string, role models.Role) (*models.User, error) {
	wallet, err := utils.NormalizeWalletAddress(wallet)
	if err != nil {
		return nil, apperrors.FieldError("wallet_address", err.Error())
	}
	if wallet != p.WalletAddress {
		return nil, apperrors.Forbidden("cannot register another wallet")
	}
	if role != models.RoleUnselected && !role.Valid() {
		return nil, apperrors.FieldError("role", "must be PROVIDER or WORKER")
	}
	user := &models.User{WalletAddress: wallet, Role: role}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, wallet string) (*models.User, error) {
	return s.store.GetUser(ctx, wallet)
}

func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	return s.store.ListUsers(ctx, limit, offset)
}

// SelectRole first-touch role selection by the wallet owner. Changing an
// existing role is an administrative action.
func (s *UserService) SelectRole(ctx context.Context, p auth.Principal, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, apperrors.FieldError("role", "must be PROVIDER or WORKER")
	}
	current, err := s.Principal(ctx, p.WalletAddress)
	if err != nil {
		return nil, err
	}
	if current.Role == role {
		return s.store.GetUser(ctx, p.WalletAddress)
	}
	if current.Role != models.RoleUnselected {
		return nil, apperrors.InvalidState("role already selected as %s", current.Role)
	}
	return s.store.SetRole(ctx, p.WalletAddress, role)
}

// SetRole administrative role change
func (s *UserService) SetRole(ctx context.Context, wallet string, role models.Role) (*models.User, error) {
	if role != models.RoleUnselected && !role.Valid() {
		return nil, apperrors.FieldError("role", "must be PROVIDER, WORKER or empty")
	}
	user, err := s.store.SetRole(ctx, wallet, role)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"wallet": wallet, "role": role}).Info("🔧 Role changed by administrator")
	return user, nil
}
