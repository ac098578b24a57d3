package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/templui/accounts/internal/apperror"
	"github.com/templui/accounts/internal/model"
	"github.com/templui/accounts/internal/repository"
	"github.com/templui/accounts/internal/validation"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrDuplicateEmail        = apperror.Conflict("an account with this email already exists")
	ErrUserNotFound          = apperror.NotFound("user")
	ErrProviderAlreadyLinked = apperror.Conflict("this provider is already linked to the account")
	ErrPasswordAlreadySet    = apperror.Conflict("password already set, use change password instead")
	ErrInvalidCredentials    = apperror.Unauthorized("invalid email or password")
)

// AuthReason records why a login was refused. It is logged, never shown.
type AuthReason int

const (
	AuthReasonNotFound AuthReason = iota + 1
	AuthReasonInvalidCredential
)

func (r AuthReason) String() string {
	switch r {
	case AuthReasonNotFound:
		return "not_found"
	case AuthReasonInvalidCredential:
		return "invalid_credential"
	default:
		return "unknown"
	}
}

// AuthError is a refused login. Its message is the same for every reason.
type AuthError struct {
	Reason AuthReason
}

func (e *AuthError) Error() string {
	return ErrInvalidCredentials.Error()
}

func (e *AuthError) Unwrap() error {
	return ErrInvalidCredentials
}

// IdentityService owns users and the identities that sign them in.
type IdentityService struct {
	store       *repository.Store
	credentials *CredentialService
	activation  *ActivationService
	now         func() time.Time
}

func NewIdentityService(store *repository.Store, credentials *CredentialService, activation *ActivationService) *IdentityService {
	return &IdentityService{
		store:       store,
		credentials: credentials,
		activation:  activation,
		now:         time.Now,
	}
}

// CreateLocal signs up with email and password. A new account gets an
// activation key. An existing account without a password (created through a
// provider) is claimed instead and keeps its id, identities and activation.
// Every success records one session.
func (s *IdentityService) CreateLocal(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.TrimSpace(email)

	err := validation.ValidateEmail(email)
	if err != nil {
		return nil, err
	}
	err = validation.ValidatePassword(password)
	if err != nil {
		return nil, err
	}

	credential, err := s.credentials.Hash(password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &model.User{
		ID:         uuid.New().String(),
		Email:      email,
		Nickname:   normalizeNickname(model.DefaultNickname(email)),
		Credential: credential,
		CreatedAt:  now,
	}
	err = s.activation.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue activation key: %w", err)
	}

	var result *model.User
	err = s.store.WithTx(ctx, func(tx *repository.Store) error {
		inserted, err := tx.Users.CreateIfAbsent(ctx, user)
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		if inserted {
			result = user
		} else {
			claimed, err := tx.Users.AttachCredential(ctx, email, credential)
			if err != nil {
				return fmt.Errorf("failed to attach credential: %w", err)
			}
			if !claimed {
				return ErrDuplicateEmail
			}
			result, err = tx.Users.ByEmail(ctx, email)
			if err != nil {
				return fmt.Errorf("failed to reload user: %w", err)
			}
			err = loadIdentities(ctx, tx, result)
			if err != nil {
				return err
			}
		}

		return tx.Sessions.Create(ctx, &model.Session{UserID: result.ID, LoggedAt: now})
	})
	if err != nil {
		return nil, err
	}

	if result.ID == user.ID {
		slog.Info("local user created", "user_id", result.ID, "email", email)
	} else {
		slog.Info("password attached to provider account", "user_id", result.ID, "email", email)
	}
	return result, nil
}

// CreateOAuth creates an activated, password-less user bound to identity.
// An email that is already registered is refused, never merged.
func (s *IdentityService) CreateOAuth(ctx context.Context, email, nickname string, identity *model.OAuth) (*model.User, error) {
	email = strings.TrimSpace(email)

	err := validation.ValidateEmail(email)
	if err != nil {
		return nil, err
	}

	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		nickname = model.DefaultNickname(email)
	}

	now := s.now().UTC()
	user := &model.User{
		ID:          uuid.New().String(),
		Email:       email,
		Nickname:    truncateRunes(normalizeNickname(nickname), validation.NicknameMaxLength),
		ActivatedAt: &now,
		CreatedAt:   now,
	}

	err = s.store.WithTx(ctx, func(tx *repository.Store) error {
		err := tx.Users.Create(ctx, user)
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return ErrDuplicateEmail
		}
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		identity.UserID = user.ID
		err = tx.OAuths.Create(ctx, identity)
		if err != nil {
			return fmt.Errorf("failed to link identity: %w", err)
		}

		return tx.Sessions.Create(ctx, &model.Session{UserID: user.ID, LoggedAt: now})
	})
	if err != nil {
		return nil, err
	}

	user.OAuths = map[string]*model.OAuth{identity.Provider: identity}
	slog.Info("provider user created", "user_id", user.ID, "email", email, "provider", identity.Provider)
	return user, nil
}

// FindByEmail loads the user with its linked identities.
func (s *IdentityService) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := s.store.Users.ByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, mapUserErr(err)
	}

	err = loadIdentities(ctx, s.store, user)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *IdentityService) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := s.store.Users.ByID(ctx, id)
	return user, mapUserErr(err)
}

// FindByIDWithIdentities loads the user together with its linked identities.
func (s *IdentityService) FindByIDWithIdentities(ctx context.Context, id string) (*model.User, error) {
	user, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	err = loadIdentities(ctx, s.store, user)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// loadIdentities fills user.OAuths so Kind and the provider list are exact.
func loadIdentities(ctx context.Context, store *repository.Store, user *model.User) error {
	oauths, err := store.OAuths.ByUserID(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to load identities: %w", err)
	}

	user.OAuths = make(map[string]*model.OAuth, len(oauths))
	for _, o := range oauths {
		user.OAuths[o.Provider] = o
	}
	return nil
}

// Authenticate checks email and password. Failures are *AuthError and match
// ErrInvalidCredentials; unknown email and wrong password look the same.
func (s *IdentityService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		s.credentials.verifyDummy(password)
		return nil, s.reject(AuthReasonNotFound, "", email)
	}
	if err != nil {
		return nil, err
	}

	if !user.HasCredential() {
		s.credentials.verifyDummy(password)
		return nil, s.reject(AuthReasonInvalidCredential, user.ID, email)
	}
	if !s.credentials.Verify(password, user.Credential) {
		return nil, s.reject(AuthReasonInvalidCredential, user.ID, email)
	}

	return user, nil
}

func (s *IdentityService) reject(reason AuthReason, userID, email string) error {
	slog.Info("login rejected", "reason", reason.String(), "user_id", userID, "email", email)
	return &AuthError{Reason: reason}
}

// OnLoggedIn records a login event for user.
func (s *IdentityService) OnLoggedIn(ctx context.Context, user *model.User) error {
	err := s.store.Sessions.Create(ctx, &model.Session{UserID: user.ID, LoggedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}

// UpdatePassword replaces the credential of user with one for password.
func (s *IdentityService) UpdatePassword(ctx context.Context, user *model.User, password string) error {
	err := validation.ValidatePassword(password)
	if err != nil {
		return err
	}

	credential, err := s.credentials.Hash(password)
	if err != nil {
		return err
	}

	err = mapUserErr(s.store.Users.UpdateCredential(ctx, user.ID, credential))
	if err != nil {
		return err
	}

	user.Credential = credential
	slog.Info("password updated", "user_id", user.ID)
	return nil
}

// SetPassword gives a provider-only account its first password.
func (s *IdentityService) SetPassword(ctx context.Context, user *model.User, password string) error {
	err := validation.ValidatePassword(password)
	if err != nil {
		return err
	}

	credential, err := s.credentials.Hash(password)
	if err != nil {
		return err
	}

	attached, err := s.store.Users.AttachCredential(ctx, user.Email, credential)
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	if !attached {
		return ErrPasswordAlreadySet
	}

	user.Credential = credential
	slog.Info("password set for provider account", "user_id", user.ID)
	return nil
}

func (s *IdentityService) UpdateNickname(ctx context.Context, user *model.User, nickname string) error {
	nickname = normalizeNickname(strings.TrimSpace(nickname))

	err := validation.ValidateNickname(nickname)
	if err != nil {
		return err
	}

	err = mapUserErr(s.store.Users.UpdateNickname(ctx, user.ID, nickname))
	if err != nil {
		return err
	}

	user.Nickname = nickname
	return nil
}

// ListAll returns every user that has signed in at least once, with linked
// identities filled.
func (s *IdentityService) ListAll(ctx context.Context) ([]model.UserSignins, error) {
	users, err := s.store.Users.ListWithSignins(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	oauths, err := s.store.OAuths.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load identities: %w", err)
	}
	byUser := make(map[string]map[string]*model.OAuth)
	for _, o := range oauths {
		if byUser[o.UserID] == nil {
			byUser[o.UserID] = make(map[string]*model.OAuth)
		}
		byUser[o.UserID][o.Provider] = o
	}

	for i := range users {
		users[i].OAuths = byUser[users[i].ID]
		if users[i].OAuths == nil {
			users[i].OAuths = map[string]*model.OAuth{}
		}
	}
	return users, nil
}

// LinkIdentity binds identity to user and records the login that produced
// it. A user holds at most one identity per provider.
func (s *IdentityService) LinkIdentity(ctx context.Context, user *model.User, identity *model.OAuth) error {
	err := s.store.WithTx(ctx, func(tx *repository.Store) error {
		linked, err := tx.OAuths.ByUserID(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("failed to load identities: %w", err)
		}
		for _, o := range linked {
			if o.Provider == identity.Provider {
				return ErrProviderAlreadyLinked
			}
		}

		identity.UserID = user.ID
		err = tx.OAuths.Create(ctx, identity)
		if err != nil {
			return fmt.Errorf("failed to link identity: %w", err)
		}

		return tx.Sessions.Create(ctx, &model.Session{UserID: user.ID, LoggedAt: s.now().UTC()})
	})
	if err != nil {
		return err
	}

	if user.OAuths == nil {
		user.OAuths = make(map[string]*model.OAuth)
	}
	user.OAuths[identity.Provider] = identity
	slog.Info("identity linked", "user_id", user.ID, "provider", identity.Provider)
	return nil
}

// SignInWithIdentity logs in the owner of a known identity and stores the
// newest provider token on it.
func (s *IdentityService) SignInWithIdentity(ctx context.Context, identity *model.OAuth, token string) (*model.User, error) {
	var user *model.User
	err := s.store.WithTx(ctx, func(tx *repository.Store) error {
		var err error
		user, err = tx.Users.ByID(ctx, identity.UserID)
		if err != nil {
			return mapUserErr(err)
		}

		if token != "" && token != identity.Token {
			err = tx.OAuths.UpdateToken(ctx, identity.ID, token)
			if err != nil {
				return fmt.Errorf("failed to refresh token: %w", err)
			}
			identity.Token = token
		}

		err = loadIdentities(ctx, tx, user)
		if err != nil {
			return err
		}

		return tx.Sessions.Create(ctx, &model.Session{UserID: user.ID, LoggedAt: s.now().UTC()})
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// Delete removes the user; sessions and identities go with it.
func (s *IdentityService) Delete(ctx context.Context, id string) error {
	err := mapUserErr(s.store.Users.Delete(ctx, id))
	if err != nil {
		return err
	}
	slog.Info("user deleted", "user_id", id)
	return nil
}

func mapUserErr(err error) error {
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrUserNotFound
	}
	return err
}

func normalizeNickname(nickname string) string {
	return norm.NFC.String(nickname)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
