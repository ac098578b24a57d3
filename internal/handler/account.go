package handler

import (
	"net/http"

	"github.com/templui/accounts/internal/ctxkeys"
	"github.com/templui/accounts/internal/service"
)

type AccountHandler struct {
	authService *service.AuthService
	userService *service.UserService
}

func NewAccountHandler(authService *service.AuthService, userService *service.UserService) *AccountHandler {
	return &AccountHandler{
		authService: authService,
		userService: userService,
	}
}

type nicknameRequest struct {
	Nickname string `json:"nickname"`
}

type passwordRequest struct {
	Current  string `json:"current"`
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
}

func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *AccountHandler) UpdateNickname(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req nicknameRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := h.userService.UpdateNickname(r.Context(), user.ID, req.Nickname)
	if err != nil {
		writeError(w, r, err)
		return
	}
	updated.OAuths = user.OAuths

	writeJSON(w, http.StatusOK, newUserResponse(updated))
}

func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req passwordRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	err = h.userService.UpdatePassword(r.Context(), user.ID, req.Current, req.Password, req.Confirm)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetPassword lets an account created through a provider add a password.
func (h *AccountHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req passwordRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	err = h.userService.SetPassword(r.Context(), user.ID, req.Password, req.Confirm)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	err := h.userService.DeleteAccount(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.authService.ClearJWTCookie(w)
	w.WriteHeader(http.StatusNoContent)
}
