package kerb

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/jcmturner/gofork/encoding/asn1"
	"github.com/jcmturner/gokrb5/v8/crypto"
	"github.com/jcmturner/gokrb5/v8/crypto/etype"
)

// KeySize is the length of every key: session keys, private keys and
// password digests.
const KeySize = 32

const (
	aesBlockSize = 16 // confounder length
	macSize      = 12 // HMAC-SHA1 truncated to 96 bits
)

// envelope is aes256-cts-hmac-sha1-96 (RFC 3962).
var envelope etype.EType = crypto.Aes256CtsHmacSha96{}

// Encrypt seals plaintext under key for the given usage with
// aes256-cts-hmac-sha1-96. The result is
// AES-CTS(Ke, confounder || plaintext) || HMAC-SHA1-96(Ki, confounder || plaintext).
func Encrypt(key []byte, usage KeyUsage, plaintext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, cryptoErr("encrypt", fmt.Errorf("key is %d bytes, want %d", len(key), KeySize))
	}
	_, ct, err := envelope.EncryptMessage(key, plaintext, uint32(usage))
	if err != nil {
		return nil, cryptoErr("encrypt", err)
	}
	return ct, nil
}

// Decrypt opens ciphertext produced by Encrypt with the same key and usage.
// A wrong key, a different usage or any modification yields ErrDecrypt.
func Decrypt(key []byte, usage KeyUsage, ciphertext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, cryptoErr("decrypt", fmt.Errorf("key is %d bytes, want %d", len(key), KeySize))
	}
	if len(ciphertext) < aesBlockSize+macSize {
		return nil, decryptErr("decrypt", fmt.Errorf("ciphertext too short (%d bytes)", len(ciphertext)))
	}
	plain, err := envelope.DecryptMessage(key, ciphertext, uint32(usage))
	if err != nil {
		return nil, decryptErr("decrypt", err)
	}
	return plain, nil
}

// EncryptObject serializes v as DER and encrypts it.
func EncryptObject(v any, key []byte, usage KeyUsage) ([]byte, error) {
	b, err := asn1.Marshal(v)
	if err != nil {
		return nil, cryptoErr("encrypt", fmt.Errorf("marshal %T: %w", v, err))
	}
	defer Wipe(b)
	return Encrypt(key, usage, b)
}

// DecryptObject decrypts ciphertext and decodes the DER payload into v,
// which must be a pointer. Trailing bytes are an error.
func DecryptObject(ciphertext, key []byte, usage KeyUsage, v any) error {
	b, err := Decrypt(key, usage, ciphertext)
	if err != nil {
		return err
	}
	defer Wipe(b)
	rest, err := asn1.Unmarshal(b, v)
	if err != nil {
		return cryptoErr("decrypt", fmt.Errorf("unmarshal %T: %w", v, err))
	}
	if len(rest) != 0 {
		return cryptoErr("decrypt", fmt.Errorf("unmarshal %T: %d trailing bytes", v, len(rest)))
	}
	return nil
}

// sealApp and openApp are EncryptObject and DecryptObject for payloads
// carrying an APPLICATION tag.
func sealApp(v any, tag int, key []byte, usage KeyUsage) ([]byte, error) {
	b, err := marshalApp(v, tag)
	if err != nil {
		return nil, cryptoErr("encrypt", fmt.Errorf("marshal %T: %w", v, err))
	}
	defer Wipe(b)
	return Encrypt(key, usage, b)
}

func openApp(ciphertext []byte, tag int, key []byte, usage KeyUsage, v any) error {
	b, err := Decrypt(key, usage, ciphertext)
	if err != nil {
		return err
	}
	defer Wipe(b)
	if err := unmarshalApp(b, v, tag); err != nil {
		return cryptoErr("decrypt", fmt.Errorf("unmarshal %T: %w", v, err))
	}
	return nil
}

// GenerateSessionKey returns KeySize random bytes.
func GenerateSessionKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, cryptoErr("generate session key", err)
	}
	return key, nil
}

// HashPassword returns the unsalted SHA-256 of the password.
//
// It is fast and unsalted, so an offline dictionary attack on a stolen
// digest is cheap. New deployments should use StringToKeyHasher or
// Argon2Hasher.
func HashPassword(plaintext string) []byte {
	sum := sha256.Sum256([]byte(plaintext))
	return sum[:]
}

// Wipe zeroes b.
func Wipe(b []byte) {
	clear(b)
}
