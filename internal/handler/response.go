package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/templui/accounts/internal/apperror"
	"github.com/templui/accounts/internal/model"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		err := json.NewEncoder(w).Encode(data)
		if err != nil {
			slog.Error("failed to encode JSON response", "error", err)
		}
	}
}

// writeError maps service errors to a status code. Anything that is not an
// *apperror.AppError is logged and reported as a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		slog.ErrorContext(r.Context(), "request failed", "error", err, "path", r.URL.Path)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "an internal error occurred",
		})
		return
	}

	status := http.StatusInternalServerError
	errorType := "internal_error"

	switch {
	case errors.Is(err, apperror.ErrValidation):
		status = http.StatusBadRequest
		errorType = "validation_error"
	case errors.Is(err, apperror.ErrNotFound):
		status = http.StatusNotFound
		errorType = "not_found"
	case errors.Is(err, apperror.ErrConflict):
		status = http.StatusConflict
		errorType = "conflict"
	case errors.Is(err, apperror.ErrUnauthorized):
		status = http.StatusUnauthorized
		errorType = "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		status = http.StatusForbidden
		errorType = "forbidden"
	case errors.Is(err, apperror.ErrUnavailable):
		status = http.StatusServiceUnavailable
		errorType = "unavailable"
	}

	writeJSON(w, status, ErrorResponse{
		Error:   errorType,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(v)
	if err != nil {
		return apperror.ValidationFailed("body", fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

type userResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Nickname    string     `json:"nickname"`
	Kind        string     `json:"kind"`
	Activated   bool       `json:"activated"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Providers   []string   `json:"providers,omitempty"`
}

// newUserResponse never carries the credential or the activation key.
func newUserResponse(u *model.User) userResponse {
	resp := userResponse{
		ID:          u.ID,
		Email:       u.Email,
		Nickname:    u.Nickname,
		Kind:        string(u.Kind()),
		Activated:   u.IsActivated(),
		ActivatedAt: u.ActivatedAt,
		CreatedAt:   u.CreatedAt,
	}
	for _, p := range []string{model.ProviderGoogle, model.ProviderFacebook, model.ProviderGitHub} {
		if u.OAuth(p) != nil {
			resp.Providers = append(resp.Providers, p)
		}
	}
	return resp
}

type userSigninsResponse struct {
	userResponse
	SigninCount  int       `json:"signin_count"`
	LastSigninAt time.Time `json:"last_signin_at"`
}
