package service

import (
	"context"
	"log/slog"

	"github.com/templui/accounts/internal/apperror"
	"github.com/templui/accounts/internal/model"
	"github.com/templui/accounts/internal/validation"
)

var (
	ErrInvalidCurrentPassword = apperror.ValidationFailed("current", "current password is incorrect")
	ErrNoPassword             = apperror.Conflict("account has no password, set one first")
	ErrActivationRequired     = apperror.Forbidden("verify your email address first")
)

// AccountNotifier sends the goodbye email after an account is deleted.
type AccountNotifier interface {
	SendAccountDeletedEmail(ctx context.Context, email, nickname string) error
}

// UserService holds the signed-in user's account operations.
type UserService struct {
	identity    *IdentityService
	credentials *CredentialService
	notifier    AccountNotifier
}

func NewUserService(identity *IdentityService, credentials *CredentialService, notifier AccountNotifier) *UserService {
	return &UserService{
		identity:    identity,
		credentials: credentials,
		notifier:    notifier,
	}
}

func (s *UserService) ByID(ctx context.Context, id string) (*model.User, error) {
	return s.identity.FindByIDWithIdentities(ctx, id)
}

func (s *UserService) UpdatePassword(ctx context.Context, userID, currentPassword, newPassword, confirm string) error {
	user, err := s.identity.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if !user.HasCredential() {
		return ErrNoPassword
	}

	if !s.credentials.Verify(currentPassword, user.Credential) {
		return ErrInvalidCurrentPassword
	}

	err = validation.ValidatePasswordConfirmation(newPassword, confirm)
	if err != nil {
		return err
	}

	return s.identity.UpdatePassword(ctx, user, newPassword)
}

// SetPassword gives an account created through a provider its first password.
func (s *UserService) SetPassword(ctx context.Context, userID, newPassword, confirm string) error {
	user, err := s.identity.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if user.HasCredential() {
		return ErrPasswordAlreadySet
	}

	err = validation.ValidatePasswordConfirmation(newPassword, confirm)
	if err != nil {
		return err
	}

	return s.identity.SetPassword(ctx, user, newPassword)
}

func (s *UserService) UpdateNickname(ctx context.Context, userID, nickname string) (*model.User, error) {
	user, err := s.identity.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	err = s.identity.UpdateNickname(ctx, user, nickname)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ListUsers returns every user that has signed in, with sign-in figures.
// Only activated viewers may see it.
func (s *UserService) ListUsers(ctx context.Context, viewer *model.User) ([]model.UserSignins, error) {
	if viewer == nil || !viewer.IsActivated() {
		return nil, ErrActivationRequired
	}
	return s.identity.ListAll(ctx)
}

func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	user, err := s.identity.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	// Foreign key CASCADE removes sessions and oauths with the user
	err = s.identity.Delete(ctx, userID)
	if err != nil {
		return err
	}

	if s.notifier != nil {
		err = s.notifier.SendAccountDeletedEmail(ctx, user.Email, user.Nickname)
		if err != nil {
			slog.Warn("failed to send account deleted email", "user_id", userID, "email", user.Email, "error", err)
		}
	}

	return nil
}
