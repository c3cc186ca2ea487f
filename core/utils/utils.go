package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

func NowUTC() time.Time {
	return time.Now().UTC()
}

// RandString returns n random bytes hex-encoded (2n characters).
func RandString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > 255 {
		return fmt.Errorf("email too long")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("invalid email")
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	return nil
}

// ValidateLength rejects values over max runes. Length ceilings are a storage
// contract: over-long input fails instead of being truncated.
func ValidateLength(field, value string, max int) error {
	if len([]rune(value)) > max {
		return fmt.Errorf("%s exceeds %d characters", field, max)
	}
	return nil
}

func TrimLower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
