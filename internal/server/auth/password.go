package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/passwords-you-take-anywhere/server/internal/common"
)

// Password hashes use the passlib pbkdf2_sha256 encoding so that accounts
// created by the previous service keep working:
//
//	$pbkdf2-sha256$<rounds>$<salt>$<hash>
//
// where salt and hash are "adapted base64" (standard alphabet with '+'
// replaced by '.', padding stripped).
const (
	hashPrefix   = "pbkdf2-sha256"
	hashRounds   = 29000
	saltSize     = 16
	derivedSize  = 32
	hashSections = 4
)

var ab64 = base64.RawStdEncoding.WithPadding(base64.NoPadding)

func ab64Encode(b []byte) string {
	return strings.ReplaceAll(ab64.EncodeToString(b), "+", ".")
}

func ab64Decode(s string) ([]byte, error) {
	return ab64.DecodeString(strings.ReplaceAll(s, ".", "+"))
}

// HashPassword derives a PBKDF2-SHA256 hash of plain with a random salt and
// returns it in the encoded form above.
func HashPassword(plain string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	dk := pbkdf2.Key([]byte(plain), salt, hashRounds, derivedSize, sha256.New)
	encoded := fmt.Sprintf("$%s$%d$%s$%s", hashPrefix, hashRounds, ab64Encode(salt), ab64Encode(dk))
	common.WipeByteArray(dk)
	return encoded, nil
}

// VerifyPassword reports whether plain matches the encoded hash. Comparison
// is constant-time; malformed hashes simply fail verification.
func VerifyPassword(plain, encoded string) bool {
	parts := strings.Split(strings.TrimPrefix(encoded, "$"), "$")
	if len(parts) != hashSections || parts[0] != hashPrefix {
		return false
	}
	rounds, err := strconv.Atoi(parts[1])
	if err != nil || rounds <= 0 {
		return false
	}
	salt, err := ab64Decode(parts[2])
	if err != nil {
		return false
	}
	want, err := ab64Decode(parts[3])
	if err != nil {
		return false
	}
	got := pbkdf2.Key([]byte(plain), salt, rounds, len(want), sha256.New)
	ok := subtle.ConstantTimeCompare(got, want) == 1
	common.WipeByteArray(got)
	common.WipeByteArray(want)
	return ok
}
