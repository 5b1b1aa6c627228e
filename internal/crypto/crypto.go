// Package crypto implements per-record authenticated encryption for memory
// content. Each record gets its own symmetric key, derived from the
// configured passphrase and a random per-record salt via Argon2id, so that
// no two ciphertexts share a key even when encrypted under the same
// configuration.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	saltLen = 16
	nonceLen = 12

	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = 32
)

// Sealer encrypts and decrypts memory content under a single configured
// passphrase. A zero-value Sealer with an empty passphrase is inert;
// callers check Enabled() before calling Seal/Open.
type Sealer struct {
	passphrase string
}

// New returns a Sealer for the given passphrase. An empty passphrase yields
// a disabled Sealer.
func New(passphrase string) *Sealer {
	return &Sealer{passphrase: passphrase}
}

// Enabled reports whether encryption is configured.
func (s *Sealer) Enabled() bool {
	return s != nil && s.passphrase != ""
}

// Seal encrypts plaintext, returning salt‖nonce‖ciphertext+tag.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generate salt: %w", err)
	}
	gcm, err := s.gcmForSalt(salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, saltLen+nonceLen+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// Open decrypts a blob produced by Seal. It returns an error if the blob is
// malformed or the authentication tag does not verify under the configured
// passphrase.
func (s *Sealer) Open(blob []byte) ([]byte, error) {
	if len(blob) < saltLen+nonceLen {
		return nil, fmt.Errorf("crypto: blob too short")
	}
	salt := blob[:saltLen]
	nonce := blob[saltLen : saltLen+nonceLen]
	ciphertext := blob[saltLen+nonceLen:]

	gcm, err := s.gcmForSalt(salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypt: %w", err)
	}
	return plaintext, nil
}

func (s *Sealer) gcmForSalt(salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(s.passphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	return gcm, nil
}
