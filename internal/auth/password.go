package auth

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is deliberately above the library default so brute-forcing
// stored hashes stays expensive.
const bcryptCost = 12

const (
	passwordMinLength = 8
	specialChars      = "@$!%*?&"
)

var (
	ErrPasswordTooShort     = errors.New("Password must be at least 8 characters")
	ErrPasswordNoUppercase  = errors.New("Password must contain at least one uppercase letter")
	ErrPasswordNoLowercase  = errors.New("Password must contain at least one lowercase letter")
	ErrPasswordNoDigit      = errors.New("Password must contain at least one digit")
	ErrPasswordNoSpecial    = errors.New("Password must contain at least one special character (@$!%*?&)")
	ErrPasswordBadCharacter = errors.New("Password may only contain letters, digits and @$!%*?&")
)

// ValidateStrength checks the registration password policy. The allowed
// character set is closed: anything outside letters, digits and the
// special set is rejected outright.
func ValidateStrength(password string) error {
	if len(password) < passwordMinLength {
		return ErrPasswordTooShort
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, char := range password {
		switch {
		case char >= 'A' && char <= 'Z':
			hasUpper = true
		case char >= 'a' && char <= 'z':
			hasLower = true
		case char >= '0' && char <= '9':
			hasDigit = true
		case strings.ContainsRune(specialChars, char):
			hasSpecial = true
		default:
			return ErrPasswordBadCharacter
		}
	}

	if !hasUpper {
		return ErrPasswordNoUppercase
	}
	if !hasLower {
		return ErrPasswordNoLowercase
	}
	if !hasDigit {
		return ErrPasswordNoDigit
	}
	if !hasSpecial {
		return ErrPasswordNoSpecial
	}

	return nil
}

// HashPassword produces a salted bcrypt hash. Each call salts
// independently, so two hashes of the same password never match.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the stored hash. The
// plaintext is never stored or logged.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
