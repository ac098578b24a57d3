package routes

import (
	"net/http"

	"github.com/templui/accounts/internal/app"
	"github.com/templui/accounts/internal/handler"
	"github.com/templui/accounts/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	home := handler.NewHomeHandler(app.DB)
	auth := handler.NewAuthHandler(app.AuthService, app.OAuthService, app.Cfg.IsProduction())
	account := handler.NewAccountHandler(app.AuthService, app.UserService)
	dashboard := handler.NewDashboardHandler(app.UserService, app.StatsService)

	mux := http.NewServeMux()

	// ============================================================================
	// PUBLIC ROUTES
	// ============================================================================

	mux.HandleFunc("GET /healthz", home.Health)

	// Auth
	mux.HandleFunc("GET /auth/csrf", auth.CSRF)
	mux.HandleFunc("POST /auth/signup", auth.Signup)
	mux.HandleFunc("POST /auth/login", auth.Login)
	mux.HandleFunc("POST /auth/logout", auth.Logout)
	mux.HandleFunc("GET /auth/activate", auth.Activate)
	mux.HandleFunc("POST /auth/verification", middleware.RequireAuth(auth.ResendVerification))

	// OAuth
	mux.HandleFunc("GET /auth/providers", auth.Providers)
	mux.HandleFunc("GET /auth/oauth/{provider}", auth.OAuthStart)
	mux.HandleFunc("GET /auth/oauth/{provider}/callback", auth.OAuthCallback)

	// ============================================================================
	// PROTECTED ROUTES (/app/*)
	// ============================================================================

	mux.HandleFunc("GET /app/me", middleware.RequireAuth(account.Me))
	mux.HandleFunc("PATCH /app/account/nickname", middleware.RequireAuth(account.UpdateNickname))
	mux.HandleFunc("POST /app/account/password", middleware.RequireAuth(account.ChangePassword))
	mux.HandleFunc("POST /app/account/password/set", middleware.RequireAuth(account.SetPassword))
	mux.HandleFunc("DELETE /app/account", middleware.RequireAuth(account.DeleteAccount))

	mux.HandleFunc("GET /app/users", middleware.RequireAuth(dashboard.Users))
	mux.HandleFunc("GET /app/stats", middleware.RequireAuth(dashboard.Stats))

	// 404
	mux.HandleFunc("/{path...}", home.NotFound)

	// Global middleware - executed in order (top to bottom)
	handler := middleware.Chain(
		mux,
		middleware.RequestID,
		middleware.Config(app.Cfg), // before CSRF, which reads IsProduction from it
		middleware.RequestLogging,
		middleware.CSRFProtection,
		middleware.AuthMiddleware(app.AuthService, app.UserService),
	)

	return handler
}
