// Package auth implements the PBKDF2 challenge-response used to
// authenticate clients. The server issues a random salt; both sides derive
// a key from the shared password and the server compares the results in
// constant time.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Iterations is the PBKDF2 iteration count.
	Iterations = 100000
	// KeyLen is the derived key length in bytes.
	KeyLen = 32
	// SaltSize is the raw salt length in bytes; on the wire the salt is
	// hex-encoded to twice this length.
	SaltSize = 16
)

// NewSaltHex generates a random salt and returns it hex-encoded, ready to
// embed in an AuthChallenge.
func NewSaltHex() (string, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return hex.EncodeToString(salt), nil
}

// DeriveKeyHex runs PBKDF2-HMAC-SHA256 over the password with the
// hex-encoded salt exactly as it appears on the wire, and returns the
// derived key hex-encoded. Both endpoints must treat saltHex as an opaque
// byte string so they derive byte-identical keys.
func DeriveKeyHex(password, saltHex string, iterations, keyLen int) string {
	dk := pbkdf2.Key([]byte(password), []byte(saltHex), iterations, keyLen, sha256.New)
	return hex.EncodeToString(dk)
}

// VerifyDerivedHex recomputes the derived key for the stored password and
// compares it to the presented hex key in constant time.
func VerifyDerivedHex(password, saltHex, presentedHex string, iterations, keyLen int) bool {
	expected := DeriveKeyHex(password, saltHex, iterations, keyLen)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presentedHex)) == 1
}
