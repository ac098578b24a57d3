package handler

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	"github.com/templui/accounts/internal/ctxkeys"
	"github.com/templui/accounts/internal/service"
)

const oauthStateCookie = "oauth_state"

type authHandler struct {
	authService  *service.AuthService
	oauthService *service.OAuthService
	isProduction bool
}

func NewAuthHandler(authService *service.AuthService, oauthService *service.OAuthService, isProduction bool) *authHandler {
	return &authHandler{
		authService:  authService,
		oauthService: oauthService,
		isProduction: isProduction,
	}
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CSRF hands out the token the client echoes in X-CSRF-Token.
func (h *authHandler) CSRF(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": ctxkeys.CSRFToken(r.Context())})
}

func (h *authHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.authService.Signup(r.Context(), req.Email, req.Password, req.Confirm)
	if err != nil {
		writeError(w, r, err)
		return
	}

	err = h.authService.IssueSession(w, user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newUserResponse(user))
}

func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	err = h.authService.IssueSession(w, user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authService.ClearJWTCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Activate consumes the emailed key. A mismatch is not an error; the
// response just reports activated=false.
func (h *authHandler) Activate(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	key := r.URL.Query().Get("key")

	user, ok, err := h.authService.Activate(r.Context(), email, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"activated": false})
		return
	}

	err = h.authService.IssueSession(w, user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"activated": true, "user": newUserResponse(user)})
}

func (h *authHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	err := h.authService.ResendVerification(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *authHandler) Providers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"providers": h.oauthService.Providers()})
}

// OAuthStart redirects to the provider consent screen
func (h *authHandler) OAuthStart(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")

	// Generate secure state token for CSRF protection
	state := generateOAuthState()

	url, err := h.oauthService.AuthCodeURL(provider, state)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Store state in secure cookie
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.isProduction,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// OAuthCallback finishes the provider login. A signed-in caller gets the
// identity linked to its account instead.
func (h *authHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")

	// Validate state parameter for CSRF protection
	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value != state || state == "" {
		slog.Warn("oauth state validation failed", "provider", provider, "error", err)
		writeError(w, r, service.ErrOAuthTokenRejected)
		return
	}

	// Clear state cookie
	http.SetCookie(w, &http.Cookie{
		Name:   oauthStateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if msg := r.URL.Query().Get("error"); msg != "" {
		slog.Warn("oauth provider returned error", "provider", provider, "error", msg)
		writeError(w, r, service.ErrOAuthTokenRejected)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, r, service.ErrOAuthTokenRejected)
		return
	}

	token, err := h.oauthService.Exchange(r.Context(), provider, code)
	if err != nil {
		writeError(w, r, err)
		return
	}

	cb := service.Callback{Provider: provider, Token: token}
	if current := ctxkeys.User(r.Context()); current != nil {
		cb.CurrentUserID = current.ID
	}

	user, err := h.oauthService.HandleCallback(r.Context(), cb)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateEmail) {
			slog.Info("oauth email already registered", "provider", provider)
		}
		writeError(w, r, err)
		return
	}

	err = h.authService.IssueSession(w, user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func generateOAuthState() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
