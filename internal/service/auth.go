package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/templui/accounts/internal/model"
	"github.com/templui/accounts/internal/validation"
)

const AuthCookieName = "auth_token"

// AuthService is the sign-in surface used by handlers: signup, login,
// activation and the JWT cookie that carries the user between requests.
type AuthService struct {
	identity     *IdentityService
	activation   *ActivationService
	jwtSecret    string
	isProduction bool
	jwtExpiry    time.Duration
}

func NewAuthService(
	identity *IdentityService,
	activation *ActivationService,
	jwtSecret string,
	isProduction bool,
	jwtExpiry time.Duration,
) *AuthService {
	return &AuthService{
		identity:     identity,
		activation:   activation,
		jwtSecret:    jwtSecret,
		isProduction: isProduction,
		jwtExpiry:    jwtExpiry,
	}
}

// Signup creates or claims a local account and mails the activation link.
// A mail failure is logged and does not fail the signup.
func (s *AuthService) Signup(ctx context.Context, email, password, confirm string) (*model.User, error) {
	err := validation.ValidatePasswordConfirmation(password, confirm)
	if err != nil {
		return nil, err
	}

	user, err := s.identity.CreateLocal(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if user.CanSendVerification() {
		err = s.activation.SendVerification(ctx, user)
		if err != nil {
			slog.Warn("signup verification email not sent", "error", err, "user_id", user.ID)
		}
	}

	return user, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.identity.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	err = s.identity.OnLoggedIn(ctx, user)
	if err != nil {
		return nil, err
	}

	slog.Info("user logged in", "user_id", user.ID)
	return user, nil
}

// Activate looks the account up by email and consumes key. Unknown emails
// behave like a wrong key.
func (s *AuthService) Activate(ctx context.Context, email, key string) (*model.User, bool, error) {
	user, err := s.identity.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	ok, err := s.activation.Activate(ctx, user, key)
	if err != nil {
		return nil, false, err
	}
	return user, ok, nil
}

func (s *AuthService) ResendVerification(ctx context.Context, user *model.User) error {
	return s.activation.SendVerification(ctx, user)
}

func (s *AuthService) GenerateJWT(user *model.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"exp":     time.Now().Add(s.jwtExpiry).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func (s *AuthService) VerifyJWT(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// IssueSession signs a JWT for user and sets it as the auth cookie.
func (s *AuthService) IssueSession(w http.ResponseWriter, user *model.User) error {
	token, err := s.GenerateJWT(user)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	s.SetJWTCookie(w, token, time.Now().Add(s.jwtExpiry))
	return nil
}

func (s *AuthService) SetJWTCookie(w http.ResponseWriter, token string, expiry time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    token,
		Expires:  expiry,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *AuthService) ClearJWTCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}
