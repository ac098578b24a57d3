package model

import "time"

const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
	ProviderGitHub   = "github"
)

// OAuth links one external account to one local user.
type OAuth struct {
	ID             string    `db:"id"`
	Provider       string    `db:"provider"`
	ProviderUserID string    `db:"provider_user_id"`
	UserID         string    `db:"user_id"`
	Token          string    `db:"token"` // JSON encoded oauth2 token
	CreatedAt      time.Time `db:"created_at"`
}

// IsProvider reports whether name is a supported OAuth provider.
func IsProvider(name string) bool {
	switch name {
	case ProviderGoogle, ProviderFacebook, ProviderGitHub:
		return true
	}
	return false
}
