package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
)

const deleteKeyBytes = 32

// IssueDeleteKey returns a fresh delete key and the digest that is stored in
// its place. The key is handed to the caller once and never persisted.
func IssueDeleteKey() (key, hash string, err error) {
	b := make([]byte, deleteKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", errors.Wrap(err, "generate delete key")
	}
	key = hex.EncodeToString(b)
	return key, HashDeleteKey(key), nil
}

func HashDeleteKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// VerifyDeleteKey reports whether key digests to hash. Both sides are
// fixed-length digests so a plain comparison is used.
func VerifyDeleteKey(key, hash string) bool {
	if key == "" || hash == "" {
		return false
	}
	return HashDeleteKey(key) == hash
}
