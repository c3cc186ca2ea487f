package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// BcryptMaxPasswordLength is bcrypt's input ceiling; longer candidates are
// truncated on the raw byte sequence before hashing.
const BcryptMaxPasswordLength = 72

// PasswordState classifies the stored credential. Legacy rows hold the
// password in plaintext until the first successful login migrates them.
type PasswordState int

const (
	PasswordHashed PasswordState = iota
	PasswordPlaintext
)

// ClassifyPassword detects the representation by bcrypt prefix instead of
// relying on a failed verify.
func ClassifyPassword(stored string) PasswordState {
	for _, p := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(stored, p) {
			return PasswordHashed
		}
	}
	return PasswordPlaintext
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(truncatePassword(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func VerifyPassword(hash, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), truncatePassword(candidate)) == nil
}

// ComparePlaintext is a constant-time equality check for legacy rows.
func ComparePlaintext(stored, candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}

// truncatePassword cuts to 72 raw bytes and discards an incomplete trailing
// UTF-8 sequence left by the cut.
func truncatePassword(password string) []byte {
	b := []byte(password)
	if len(b) <= BcryptMaxPasswordLength {
		return b
	}
	b = b[:BcryptMaxPasswordLength]
	for i := 0; i < utf8.UTFMax-1 && len(b) > 0; i++ {
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size != 1 {
			break
		}
		b = b[:len(b)-1]
	}
	return b
}
