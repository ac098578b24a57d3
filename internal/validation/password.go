package validation

import (
	"strings"

	"github.com/templui/accounts/internal/apperror"
)

const (
	PasswordMinLength = 8
	PasswordMaxLength = 20
)

// punctuation is the ASCII punctuation set accepted as a special character.
const punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// ValidatePassword enforces the password policy: 8 to 20 characters with at
// least one lowercase letter, uppercase letter, digit and punctuation mark.
func ValidatePassword(password string) error {
	if password == "" {
		return apperror.ValidationFailed("password", "password is required")
	}

	length := len([]rune(password))
	if length < PasswordMinLength || length > PasswordMaxLength {
		return apperror.ValidationFailed("password", "password must be between 8 and 20 characters")
	}

	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(punctuation, r):
			special = true
		}
	}

	if !lower {
		return apperror.ValidationFailed("password", "password must contain at least one lowercase letter")
	}
	if !upper {
		return apperror.ValidationFailed("password", "password must contain at least one uppercase letter")
	}
	if !digit {
		return apperror.ValidationFailed("password", "password must contain at least one digit")
	}
	if !special {
		return apperror.ValidationFailed("password", "password must contain at least one special character")
	}

	return nil
}

// ValidatePasswordConfirmation checks that both entries match.
func ValidatePasswordConfirmation(password, confirm string) error {
	if password != confirm {
		return apperror.ValidationFailed("confirm", "passwords must match")
	}
	return nil
}
