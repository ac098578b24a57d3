package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/templui/accounts/internal/apperror"
	"github.com/templui/accounts/internal/model"
	"github.com/templui/accounts/internal/repository"
)

const keyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Largest multiple of len(keyAlphabet) below 256; bytes at or above it are
// discarded so every character is equally likely.
const keyByteLimit = 256 - 256%len(keyAlphabet)

const DefaultActivationKeyLength = 50

var (
	ErrVerificationNotAllowed = apperror.Conflict("account is already activated")
	ErrMailerFailure          = apperror.Unavailable("verification email could not be sent")
)

// Mailer delivers the verification email and reports success.
type Mailer interface {
	SendVerification(ctx context.Context, user *model.User) bool
}

type ActivationService struct {
	store     *repository.Store
	mailer    Mailer
	keyLength int
	expiry    time.Duration
	now       func() time.Time
}

// NewActivationService builds the activation protocol. An expiry of zero
// lets keys live until they are used.
func NewActivationService(store *repository.Store, mailer Mailer, keyLength int, expiry time.Duration) *ActivationService {
	if keyLength <= 0 {
		keyLength = DefaultActivationKeyLength
	}
	return &ActivationService{
		store:     store,
		mailer:    mailer,
		keyLength: keyLength,
		expiry:    expiry,
		now:       time.Now,
	}
}

// GenerateKey returns a random alphanumeric string of the given length.
func GenerateKey(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid key length %d", length)
	}

	key := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(key) < length {
		_, err := rand.Read(buf)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= keyByteLimit {
				continue
			}
			key = append(key, keyAlphabet[int(b)%len(keyAlphabet)])
			if len(key) == length {
				break
			}
		}
	}
	return string(key), nil
}

// Issue puts a fresh, unactivated key on user. The caller persists it.
func (s *ActivationService) Issue(user *model.User) error {
	key, err := GenerateKey(s.keyLength)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	user.ActivationKey = &key
	user.ActivationIssuedAt = &now
	user.ActivatedAt = nil
	return nil
}

// expired reports whether user's key is past the expiry window.
func (s *ActivationService) expired(user *model.User) bool {
	if s.expiry <= 0 || user.ActivationIssuedAt == nil {
		return false
	}
	return !user.ActivationIssuedAt.After(s.now().UTC().Add(-s.expiry))
}

// Activate consumes key for user and records the login it grants. It returns
// false without changing anything when the key is wrong, already used or
// expired.
func (s *ActivationService) Activate(ctx context.Context, user *model.User, key string) (bool, error) {
	if user == nil || key == "" {
		return false, nil
	}

	now := s.now().UTC()
	var issuedAfter time.Time
	if s.expiry > 0 {
		issuedAfter = now.Add(-s.expiry)
	}

	var activated bool
	err := s.store.WithTx(ctx, func(tx *repository.Store) error {
		ok, err := tx.Users.Activate(ctx, user.ID, key, issuedAfter, now)
		if err != nil {
			return fmt.Errorf("failed to activate user: %w", err)
		}
		if !ok {
			return nil
		}
		activated = true
		return tx.Sessions.Create(ctx, &model.Session{UserID: user.ID, LoggedAt: now})
	})
	if err != nil {
		return false, err
	}

	if !activated {
		slog.Info("activation rejected", "user_id", user.ID)
		return false, nil
	}

	user.ActivatedAt = &now
	user.ActivationKey = nil
	user.ActivationIssuedAt = nil
	slog.Info("user activated", "user_id", user.ID)
	return true, nil
}

// SendVerification mails the activation link to an unactivated user. An
// expired key is replaced first so the mailed link works.
func (s *ActivationService) SendVerification(ctx context.Context, user *model.User) error {
	if !user.CanSendVerification() {
		return ErrVerificationNotAllowed
	}

	if s.expired(user) {
		err := s.reissue(ctx, user)
		if err != nil {
			return err
		}
	}

	if !s.mailer.SendVerification(ctx, user) {
		slog.Warn("verification email failed", "user_id", user.ID, "email", user.Email)
		return ErrMailerFailure
	}
	return nil
}

func (s *ActivationService) reissue(ctx context.Context, user *model.User) error {
	key, err := GenerateKey(s.keyLength)
	if err != nil {
		return err
	}
	now := s.now().UTC()

	ok, err := s.store.Users.ReissueActivation(ctx, user.ID, key, now)
	if err != nil {
		return fmt.Errorf("failed to reissue activation key: %w", err)
	}
	if !ok {
		return ErrVerificationNotAllowed
	}

	user.ActivationKey = &key
	user.ActivationIssuedAt = &now
	slog.Info("activation key reissued", "user_id", user.ID)
	return nil
}
