// Package credentials hashes and checks passwords and normalises login
// identifiers.
package credentials

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 8

var ErrWeakPassword = errors.New("password must be at least 8 characters")

// dummyHash is compared against when an identifier is unknown so that the
// failure path costs one bcrypt comparison like the success path does.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("carego-dummy-password"), bcrypt.DefaultCost)

func HashPassword(p string) (string, error) {
	if len(p) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	b, err := bcrypt.GenerateFromPassword([]byte(p), bcrypt.DefaultCost)
	return string(b), err
}

func ComparePassword(hash, p string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(p)) == nil
}

// BurnComparison performs a comparison whose result is discarded.
func BurnComparison(p string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(p))
}

// NormalizeIdentifier trims and lower-cases a phone number or email.
func NormalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
