package model

import "time"

// Session is one login event. Rows are append-only.
type Session struct {
	ID       string    `db:"id"`
	UserID   string    `db:"user_id"`
	LoggedAt time.Time `db:"logged_at"`
}

// Stats summarizes usage derived from sessions.
type Stats struct {
	TotalUsers      int     `json:"total_users"`
	ActiveToday     int     `json:"active_today"`
	AvgActiveLast7d float64 `json:"avg_active_last_7_days"`
}
