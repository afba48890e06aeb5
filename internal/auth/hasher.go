// Package auth implements the password digest contract: salted, iterated
// PBKDF2 digests in a self-describing stored form, with verification falling
// back to the legacy unsalted digests still present in old user rows.
package auth

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	scheme     = "pbkdf2"
	iterations = 31000
	saltLen    = 16
	keyLen     = 32
)

type PasswordHasher struct {
	iterations int
}

func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{iterations: iterations}
}

// Hash produces the stored form "pbkdf2$<iterations>$<saltHex>$<digestHex>".
func (h *PasswordHasher) Hash(raw string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	digest := pbkdf2.Key([]byte(raw), salt, h.iterations, keyLen, sha256.New)
	return fmt.Sprintf("%s$%d$%s$%s", scheme, h.iterations, hex.EncodeToString(salt), hex.EncodeToString(digest)), nil
}

// Verify checks raw against the stored form. Structured pbkdf2 digests are
// recomputed with the embedded salt and iteration count; anything else is
// treated as a legacy unsalted SHA-256 or MD5 hex digest. All comparisons
// are constant time.
func (h *PasswordHasher) Verify(raw, stored string) bool {
	if strings.HasPrefix(stored, scheme+"$") {
		return h.verifyStructured(raw, stored)
	}
	return verifyLegacy(raw, stored)
}

// NeedsRehash reports whether the stored form predates the structured
// scheme and should be upgraded on the next successful login.
func (h *PasswordHasher) NeedsRehash(stored string) bool {
	return !strings.HasPrefix(stored, scheme+"$")
}

func (h *PasswordHasher) verifyStructured(raw, stored string) bool {
	parts := strings.Split(stored, "$")
	if len(parts) != 4 {
		return false
	}
	iter, err := strconv.Atoi(parts[1])
	if err != nil || iter <= 0 {
		return false
	}
	salt, err := hex.DecodeString(parts[2])
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(parts[3])
	if err != nil {
		return false
	}
	got := pbkdf2.Key([]byte(raw), salt, iter, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

func verifyLegacy(raw, stored string) bool {
	sha := sha256.Sum256([]byte(raw))
	if constantTimeHexEqual(hex.EncodeToString(sha[:]), stored) {
		return true
	}
	sum := md5.Sum([]byte(raw))
	return constantTimeHexEqual(hex.EncodeToString(sum[:]), stored)
}

func constantTimeHexEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(strings.ToLower(b))) == 1
}
