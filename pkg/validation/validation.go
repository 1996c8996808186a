package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	// EmailRegex validates email format
	EmailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

const (
	MaxImageURLLength = 2048
	MaxNameLength     = 100
	uploadsPrefix     = "/uploads/"
)

// ValidateEmail validates email address
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > 254 {
		return fmt.Errorf("email is too long (max 254 characters)")
	}
	if !EmailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidatePassword validates password
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password is required")
	}
	if len(password) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}
	if len(password) > 72 {
		return fmt.Errorf("password is too long (max 72 bytes)")
	}
	return nil
}

// ValidateDisplayName validates an optional user display name.
func ValidateDisplayName(name string) error {
	if name == "" {
		return nil
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("name contains invalid characters")
	}
	return ValidateStringLength(name, 1, MaxNameLength, "name")
}

// ValidateMessageContent checks an already trimmed message body. Empty is
// allowed here; the caller decides whether the message as a whole is empty.
func ValidateMessageContent(content string, maxRunes int) error {
	if content == "" {
		return nil
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("content contains invalid characters")
	}
	return ValidateStringLength(content, 0, maxRunes, "content")
}

// ValidateImageURL accepts absolute http(s) URLs and server-relative upload paths.
func ValidateImageURL(raw string) error {
	if raw == "" {
		return nil
	}
	if len(raw) > MaxImageURLLength {
		return fmt.Errorf("imageUrl is too long (max %d characters)", MaxImageURLLength)
	}
	if strings.HasPrefix(raw, uploadsPrefix) {
		if strings.Contains(raw, "..") || len(raw) == len(uploadsPrefix) {
			return fmt.Errorf("invalid imageUrl path")
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid imageUrl: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("imageUrl must be an http(s) URL or an /uploads/ path")
	}
	if u.Host == "" {
		return fmt.Errorf("imageUrl must have a host")
	}
	return nil
}

// ValidateID validates a server-generated identifier.
func ValidateID(id, fieldName string) error {
	if id == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid %s format", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
