package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashKeyWithSalt creates a SHA-256 hash of the API key combined with the salt
func HashKeyWithSalt(key, salt string) string {
	hasher := sha256.New()
	hasher.Write([]byte(key + salt))
	return hex.EncodeToString(hasher.Sum(nil))
}

// RandomHex generates a random hexadecimal string of n bytes
func RandomHex(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// GenerateHashAndSalt creates a new random salt and hashes the API key with it
func GenerateHashAndSalt(key string) (hash string, salt string) {
	salt, _ = RandomHex(16)
	hash = HashKeyWithSalt(key, salt)
	return
}

// VerifyKey checks a presented API key against a stored hash and salt in
// constant time.
func VerifyKey(key, salt, hash string) bool {
	computed := HashKeyWithSalt(key, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}
