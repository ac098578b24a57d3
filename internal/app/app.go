package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/templui/accounts/internal/config"
	"github.com/templui/accounts/internal/db"
	"github.com/templui/accounts/internal/model"
	"github.com/templui/accounts/internal/repository"
	"github.com/templui/accounts/internal/service"
	"golang.org/x/oauth2"
)

type App struct {
	Cfg          *config.Config
	DB           *sqlx.DB
	Store        *repository.Store
	AuthService  *service.AuthService
	UserService  *service.UserService
	OAuthService *service.OAuthService
	StatsService *service.StatsService
	EmailService *service.EmailService
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Run database migrations
	err = db.RunMigrations(ctx, database.DB, cfg.DBDriver)
	if err != nil {
		_ = db.Close(database)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	store := repository.NewStore(database)

	oauthConfigs, err := oauthConfigs(cfg)
	if err != nil {
		_ = db.Close(database)
		return nil, err
	}

	// Services
	emailService := service.NewEmailService(
		cfg.ResendAPIKey,
		cfg.EmailFrom,
		cfg.AppURL,
		cfg.AppName,
		cfg.IsDevelopment(),
		cfg.MailerTimeout,
	)
	credentialService := service.NewCredentialService(cfg.BcryptCost)
	activationService := service.NewActivationService(store, emailService, cfg.ActivationKeyLength, cfg.ActivationKeyExpiry)
	identityService := service.NewIdentityService(store, credentialService, activationService)
	oauthService := service.NewOAuthService(
		oauthConfigs,
		service.NewHTTPProfileFetcher(),
		identityService,
		store,
		cfg.OAuthFetchTimeout,
	)
	authService := service.NewAuthService(
		identityService,
		activationService,
		cfg.JWTSecret,
		cfg.IsProduction(),
		cfg.JWTExpiry,
	)
	userService := service.NewUserService(identityService, credentialService, emailService)
	statsService := service.NewStatsService(store, cfg.StatsLocation())

	return &App{
		Cfg:          cfg,
		DB:           database,
		Store:        store,
		AuthService:  authService,
		UserService:  userService,
		OAuthService: oauthService,
		StatsService: statsService,
		EmailService: emailService,
	}, nil
}

// oauthConfigs builds a client config for every provider with credentials.
func oauthConfigs(cfg *config.Config) (map[string]*oauth2.Config, error) {
	creds := map[string][2]string{
		model.ProviderGoogle:   {cfg.GoogleClientID, cfg.GoogleClientSecret},
		model.ProviderFacebook: {cfg.FacebookClientID, cfg.FacebookClientSecret},
		model.ProviderGitHub:   {cfg.GitHubClientID, cfg.GitHubClientSecret},
	}

	configs := make(map[string]*oauth2.Config)
	for provider, c := range creds {
		oc, err := service.NewOAuthConfig(provider, c[0], c[1], cfg.AppURL)
		if err != nil {
			return nil, fmt.Errorf("failed to configure %s oauth: %w", provider, err)
		}
		if oc != nil {
			configs[provider] = oc
		}
	}
	return configs, nil
}

func (a *App) Close() error {
	if a.DB != nil {
		return db.Close(a.DB)
	}
	return nil
}
