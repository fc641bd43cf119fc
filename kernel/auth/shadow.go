package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLen = 16
	keyLen  = 32

	// hashRounds is the PBKDF2 iteration count written into new hashes.
	// Existing hashes verify with whatever count they carry.
	hashRounds = 12000
)

var b64 = base64.RawStdEncoding

// HashPassword derives a salted PBKDF2-SHA256 hash in the
// $pbkdf2-sha256$rounds$salt$key shadow format.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := pbkdf2.Key([]byte(password), salt, hashRounds, keyLen, sha256.New)
	return "$pbkdf2-sha256$" + strconv.Itoa(hashRounds) + "$" + b64.EncodeToString(salt) + "$" + b64.EncodeToString(key), nil
}

// CheckPassword re-derives the stored hash from password and compares in
// constant time. Unparseable hashes never match.
func CheckPassword(password, stored string) bool {
	f := strings.Split(stored, "$")
	if len(f) != 5 || f[0] != "" || f[1] != "pbkdf2-sha256" {
		return false
	}
	rounds, err := strconv.Atoi(f[2])
	if err != nil || rounds < 1 {
		return false
	}
	salt, err := b64.DecodeString(f[3])
	if err != nil {
		return false
	}
	want, err := b64.DecodeString(f[4])
	if err != nil {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, rounds, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}
