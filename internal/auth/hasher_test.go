package auth

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

func TestHasher_HashAndVerify(t *testing.T) {
	h := NewPasswordHasher()

	stored, err := h.Hash("gizli-parola")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	parts := strings.Split(stored, "$")
	if len(parts) != 4 || parts[0] != "pbkdf2" {
		t.Fatalf("stored form = %q, want pbkdf2$iter$salt$digest", stored)
	}

	if !h.Verify("gizli-parola", stored) {
		t.Error("Verify() = false for the correct password")
	}
	if h.Verify("yanlis-parola", stored) {
		t.Error("Verify() = true for a wrong password")
	}
}

func TestHasher_SaltsAreUnique(t *testing.T) {
	h := NewPasswordHasher()
	first, _ := h.Hash("aynisi")
	second, _ := h.Hash("aynisi")
	if first == second {
		t.Error("two hashes of the same password are identical, salt is not random")
	}
}

func TestHasher_LegacySHA256Fallback(t *testing.T) {
	h := NewPasswordHasher()
	sum := sha256.Sum256([]byte("eski-parola"))
	legacy := hex.EncodeToString(sum[:])

	if !h.Verify("eski-parola", legacy) {
		t.Error("Verify() = false for a legacy sha256 digest")
	}
	if h.Verify("baska", legacy) {
		t.Error("Verify() = true for a wrong password against a legacy digest")
	}
}

func TestHasher_LegacyMD5Fallback(t *testing.T) {
	h := NewPasswordHasher()
	sum := md5.Sum([]byte("cok-eski"))
	legacy := hex.EncodeToString(sum[:])

	if !h.Verify("cok-eski", legacy) {
		t.Error("Verify() = false for a legacy md5 digest")
	}
}

func TestHasher_NeedsRehash(t *testing.T) {
	h := NewPasswordHasher()
	structured, _ := h.Hash("parola")

	if h.NeedsRehash(structured) {
		t.Error("NeedsRehash() = true for a structured digest")
	}
	sum := sha256.Sum256([]byte("parola"))
	if !h.NeedsRehash(hex.EncodeToString(sum[:])) {
		t.Error("NeedsRehash() = false for a legacy digest")
	}
}

func TestHasher_MalformedStoredForms(t *testing.T) {
	h := NewPasswordHasher()
	tests := []string{
		"pbkdf2$notanumber$aa$bb",
		"pbkdf2$1000$zz$bb",
		"pbkdf2$1000$aa",
		"",
	}
	for _, stored := range tests {
		if h.Verify("anything", stored) {
			t.Errorf("Verify() = true for malformed stored form %q", stored)
		}
	}
}
