package validation

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{"valid email", "user@example.com", false},
		{"valid email with subdomain", "user@mail.example.com", false},
		{"empty email", "", true},
		{"invalid format", "invalid-email", true},
		{"missing @", "userexample.com", true},
		{"too long", strings.Repeat("a", 250) + "@example.com", true},
		{"valid with plus", "user+tag@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "secret1", false},
		{"exactly six", "123456", false},
		{"too short", "12345", true},
		{"empty", "", true},
		{"beyond bcrypt limit", strings.Repeat("p", 73), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePassword() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateMessageContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"empty is left to the caller", "", false},
		{"plain", "hello room", false},
		{"multibyte at limit", strings.Repeat("ж", 10), false},
		{"over limit", strings.Repeat("a", 11), true},
		{"invalid utf8", "\xff\xfe", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageContent(tt.content, 10)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMessageContent() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateImageURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"empty", "", false},
		{"https", "https://cdn.example.com/cat.png", false},
		{"http", "http://example.com/a.jpg", false},
		{"uploads path", "/uploads/2024/cat.png", false},
		{"bare uploads prefix", "/uploads/", true},
		{"traversal", "/uploads/../etc/passwd", true},
		{"javascript scheme", "javascript:alert(1)", true},
		{"data uri", "data:image/png;base64,AAAA", true},
		{"no host", "https:///cat.png", true},
		{"relative elsewhere", "/static/cat.png", true},
		{"too long", "https://example.com/" + strings.Repeat("a", MaxImageURLLength), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateImageURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateImageURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestValidateDisplayName(t *testing.T) {
	if err := ValidateDisplayName(""); err != nil {
		t.Errorf("empty name should be allowed, got %v", err)
	}
	if err := ValidateDisplayName("Ada"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateDisplayName(strings.Repeat("n", MaxNameLength+1)); err == nil {
		t.Error("expected error for long name")
	}
}

func TestValidateID(t *testing.T) {
	if err := ValidateID(uuid.NewString(), "message id"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateID("", "message id"); err == nil {
		t.Error("expected error for empty id")
	}
	if err := ValidateID("not-a-uuid", "message id"); err == nil {
		t.Error("expected error for malformed id")
	}
}

func TestValidateStringLength(t *testing.T) {
	if err := ValidateStringLength("abc", 1, 3, "field"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateStringLength("", 1, 3, "field"); err == nil {
		t.Error("expected error below min")
	}
	if err := ValidateStringLength("abcd", 1, 3, "field"); err == nil {
		t.Error("expected error above max")
	}
}
