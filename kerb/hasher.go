package kerb

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

// PasswordHasher turns a password into the client's long term key. The
// client and the registry must use the same hasher; the result must be
// deterministic for a given client and password.
type PasswordHasher interface {
	HashPassword(clientID, password string) ([]byte, error)
}

// PasswordHasherFunc is a function adapter for PasswordHasher.
type PasswordHasherFunc func(clientID, password string) ([]byte, error)

func (f PasswordHasherFunc) HashPassword(clientID, password string) ([]byte, error) {
	return f(clientID, password)
}

// SHA256Hasher hashes with HashPassword and ignores the client ID.
type SHA256Hasher struct{}

func (SHA256Hasher) HashPassword(_, password string) ([]byte, error) {
	return HashPassword(password), nil
}

// DefaultIterations is the PBKDF2 iteration count of RFC 3962.
const DefaultIterations = 4096

// StringToKeyHasher derives the key the way Kerberos derives an
// aes256-cts-hmac-sha1-96 key from a password: PBKDF2-HMAC-SHA1 salted with
// realm and client ID, then DK(tkey, "kerberos").
type StringToKeyHasher struct {
	Realm      string
	Iterations int // DefaultIterations if zero
}

func (h StringToKeyHasher) HashPassword(clientID, password string) ([]byte, error) {
	iter := h.Iterations
	if iter == 0 {
		iter = DefaultIterations
	}
	if iter < 0 || int64(iter) > 0xffffffff {
		return nil, cryptoErr("hash password", fmt.Errorf("invalid iteration count %d", iter))
	}
	key, err := envelope.StringToKey(password, h.Realm+clientID, fmt.Sprintf("%08x", iter))
	if err != nil {
		return nil, cryptoErr("hash password", err)
	}
	return key, nil
}

// Argon2Hasher derives the key with Argon2id salted with realm and client ID.
type Argon2Hasher struct {
	Realm   string
	Time    uint32 // 1 if zero
	Memory  uint32 // KiB, 64 MiB if zero
	Threads uint8  // 4 if zero
}

func (h Argon2Hasher) HashPassword(clientID, password string) ([]byte, error) {
	t, m, p := h.Time, h.Memory, h.Threads
	if t == 0 {
		t = 1
	}
	if m == 0 {
		m = 64 * 1024
	}
	if p == 0 {
		p = 4
	}
	return argon2.IDKey([]byte(password), []byte(h.Realm+clientID), t, m, p, KeySize), nil
}
