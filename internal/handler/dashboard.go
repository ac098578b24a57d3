package handler

import (
	"net/http"
	"strconv"

	"github.com/templui/accounts/internal/apperror"
	"github.com/templui/accounts/internal/ctxkeys"
	"github.com/templui/accounts/internal/service"
)

type DashboardHandler struct {
	userService  *service.UserService
	statsService *service.StatsService
}

func NewDashboardHandler(userService *service.UserService, statsService *service.StatsService) *DashboardHandler {
	return &DashboardHandler{
		userService:  userService,
		statsService: statsService,
	}
}

// Users lists everyone who has signed in, for activated viewers.
func (h *DashboardHandler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.ListUsers(r.Context(), ctxkeys.User(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]userSigninsResponse, 0, len(users))
	for i := range users {
		resp = append(resp, userSigninsResponse{
			userResponse: newUserResponse(&users[i].User),
			SigninCount:  users[i].SigninCount,
			LastSigninAt: users[i].LastSigninAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": resp})
}

// Stats returns the usage summary. ?days=n adds the average over n days.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	summary, err := h.statsService.Summary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	raw := r.URL.Query().Get("days")
	if raw == "" {
		writeJSON(w, http.StatusOK, summary)
		return
	}

	days, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, r, apperror.ValidationFailed("days", "must be a number"))
		return
	}
	avg, err := h.statsService.AvgActiveLastNDays(r.Context(), days)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_users":            summary.TotalUsers,
		"active_today":           summary.ActiveToday,
		"avg_active_last_7_days": summary.AvgActiveLast7d,
		"days":                   days,
		"avg_active":             avg,
	})
}
