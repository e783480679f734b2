package scheduler

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// NewToken mints a schedule trigger secret: 32 bytes of randomness,
// hex-encoded. Only the returned hash is ever persisted; the plaintext
// travels once, inside the durable scheduler's job payload.
func NewToken() (plaintext, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	plaintext = hex.EncodeToString(buf)
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return plaintext, string(digest), nil
}

// VerifyToken checks a presented secret against a stored hash.
func VerifyToken(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
