package validation

import (
	"net/mail"

	"github.com/templui/accounts/internal/apperror"
)

// EmailMaxLength matches the width of the users.email column.
const EmailMaxLength = 255

// ValidateEmail validates email format and length
// Uses Go's built-in net/mail parser which follows RFC 5322
func ValidateEmail(email string) error {
	if email == "" {
		return apperror.ValidationFailed("email", "email address is required")
	}

	if len(email) > EmailMaxLength {
		return apperror.ValidationFailed("email", "email address is too long (max 255 characters)")
	}

	// Reject display-name forms like "Bob <bob@x.com>": the parsed address must be the whole input
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperror.ValidationFailed("email", "invalid email address format")
	}

	return nil
}
