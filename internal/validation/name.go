package validation

import (
	"strings"
	"unicode/utf8"

	"github.com/templui/accounts/internal/apperror"
)

const NicknameMaxLength = 255

// ValidateNickname validates a display name
func ValidateNickname(nickname string) error {
	trimmed := strings.TrimSpace(nickname)

	if trimmed == "" {
		return apperror.ValidationFailed("nickname", "nickname is required")
	}

	if utf8.RuneCountInString(trimmed) > NicknameMaxLength {
		return apperror.ValidationFailed("nickname", "nickname is too long (max 255 characters)")
	}

	return nil
}
