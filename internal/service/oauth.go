package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/templui/accounts/internal/apperror"
	"github.com/templui/accounts/internal/model"
	"github.com/templui/accounts/internal/repository"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

const DefaultOAuthFetchTimeout = 10 * time.Second

var (
	ErrUnknownProvider    = apperror.NotFound("oauth provider")
	ErrOAuthTokenRejected = apperror.Unauthorized("failed to log in with provider")
	ErrOAuthProfileFetch  = apperror.Unavailable("failed to fetch user info from provider")
	ErrOAuthEmailRequired = apperror.ValidationFailed("email", "this application requires your email address")
)

// Callback is what a provider redirect hands to the linking state machine.
type Callback struct {
	Provider      string
	Token         *oauth2.Token
	CurrentUserID string // set when a signed-in user links another provider
}

type OAuthService struct {
	configs      map[string]*oauth2.Config
	fetcher      ProfileFetcher
	identity     *IdentityService
	store        *repository.Store
	fetchTimeout time.Duration
}

func NewOAuthService(
	configs map[string]*oauth2.Config,
	fetcher ProfileFetcher,
	identity *IdentityService,
	store *repository.Store,
	fetchTimeout time.Duration,
) *OAuthService {
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultOAuthFetchTimeout
	}
	if configs == nil {
		configs = make(map[string]*oauth2.Config)
	}
	return &OAuthService{
		configs:      configs,
		fetcher:      fetcher,
		identity:     identity,
		store:        store,
		fetchTimeout: fetchTimeout,
	}
}

// NewOAuthConfig returns the client config for provider, or nil when the
// client is not configured.
func NewOAuthConfig(provider, clientID, clientSecret, appURL string) (*oauth2.Config, error) {
	if clientID == "" || clientSecret == "" {
		return nil, nil
	}

	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  strings.TrimRight(appURL, "/") + "/auth/oauth/" + provider + "/callback",
	}

	switch provider {
	case model.ProviderGoogle:
		cfg.Endpoint = google.Endpoint
		cfg.Scopes = []string{"profile", "email"}
	case model.ProviderFacebook:
		cfg.Endpoint = facebook.Endpoint
		cfg.Scopes = []string{"public_profile", "email"}
	case model.ProviderGitHub:
		cfg.Endpoint = github.Endpoint
		cfg.Scopes = []string{"read:user", "user:email"}
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	return cfg, nil
}

// Providers lists the configured providers in a stable order.
func (s *OAuthService) Providers() []string {
	providers := make([]string, 0, len(s.configs))
	for p := range s.configs {
		providers = append(providers, p)
	}
	slices.Sort(providers)
	return providers
}

func (s *OAuthService) AuthCodeURL(provider, state string) (string, error) {
	cfg, ok := s.configs[provider]
	if !ok {
		return "", ErrUnknownProvider
	}
	return cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "consent")), nil
}

// Exchange trades an authorization code for a token.
func (s *OAuthService) Exchange(ctx context.Context, provider, code string) (*oauth2.Token, error) {
	cfg, ok := s.configs[provider]
	if !ok {
		return nil, ErrUnknownProvider
	}

	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		slog.Warn("oauth code exchange failed", "provider", provider, "error", err)
		return nil, ErrOAuthTokenRejected
	}
	return token, nil
}

// HandleCallback resolves a provider login to a user. A known identity logs
// its owner in; an unknown one is linked to the signed-in user when there is
// one, otherwise it creates a new account. Identities are never matched by
// email. Every success records exactly one session.
func (s *OAuthService) HandleCallback(ctx context.Context, cb Callback) (*model.User, error) {
	if !model.IsProvider(cb.Provider) {
		return nil, ErrUnknownProvider
	}
	if cb.Token == nil || !cb.Token.Valid() {
		return nil, ErrOAuthTokenRejected
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	profile, err := s.fetcher.FetchProfile(fetchCtx, cb.Provider, cb.Token)
	cancel()
	if err != nil {
		slog.Warn("oauth profile fetch failed", "provider", cb.Provider, "error", err)
		return nil, ErrOAuthProfileFetch
	}

	providerUserID := profileID(profile["id"])
	if providerUserID == "" {
		slog.Warn("oauth profile has no id", "provider", cb.Provider)
		return nil, ErrOAuthProfileFetch
	}

	email, _ := profile["email"].(string)
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrOAuthEmailRequired
	}
	name, _ := profile["name"].(string)

	tokenJSON, err := json.Marshal(cb.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token: %w", err)
	}

	identity := &model.OAuth{
		Provider:       cb.Provider,
		ProviderUserID: providerUserID,
		Token:          string(tokenJSON),
	}

	user, err := s.resolve(ctx, cb, identity, email, name)
	if errors.Is(err, repository.ErrDuplicateOAuth) || errors.Is(err, ErrDuplicateEmail) {
		// A concurrent callback may have created the identity first
		existing, lookupErr := s.store.OAuths.ByProvider(ctx, cb.Provider, providerUserID)
		if lookupErr == nil {
			return s.identity.SignInWithIdentity(ctx, existing, identity.Token)
		}
	}
	if errors.Is(err, repository.ErrDuplicateOAuth) {
		return nil, ErrProviderAlreadyLinked
	}
	return user, err
}

func (s *OAuthService) resolve(ctx context.Context, cb Callback, identity *model.OAuth, email, name string) (*model.User, error) {
	existing, err := s.store.OAuths.ByProvider(ctx, identity.Provider, identity.ProviderUserID)
	if err == nil {
		slog.Info("user logged in via oauth", "user_id", existing.UserID, "provider", identity.Provider)
		return s.identity.SignInWithIdentity(ctx, existing, identity.Token)
	}
	if !errors.Is(err, repository.ErrOAuthNotFound) {
		return nil, fmt.Errorf("failed to look up identity: %w", err)
	}

	if cb.CurrentUserID != "" {
		user, err := s.identity.FindByID(ctx, cb.CurrentUserID)
		if err != nil {
			return nil, err
		}
		err = s.identity.LinkIdentity(ctx, user, identity)
		if err != nil {
			return nil, err
		}
		return user, nil
	}

	return s.identity.CreateOAuth(ctx, email, name, identity)
}

// profileID renders a provider user id as a decimal or opaque string.
func profileID(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return ""
	}
}
