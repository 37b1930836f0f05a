package phi

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

const nonceSize = 12

// Encryptor wraps AES-256-GCM encryption of a single short string (a
// sample's original identifier) with a fresh nonce per call. There is no
// pack dependency for AEAD encryption (DESIGN.md); this is the one
// component of the PHI anonymizer built directly on the standard library.
type Encryptor struct {
	gcm cipher.AEAD
}

// NewEncryptor builds an Encryptor from a 32-byte AES-256 key.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("phi: encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("phi: creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("phi: creating GCM mode: %w", err)
	}
	return &Encryptor{gcm: gcm}, nil
}

// Encrypt seals plaintext with a fresh random nonce, returning the
// ciphertext and the nonce used (stored alongside it for decryption).
func (e *Encryptor) Encrypt(plaintext string) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("phi: generating nonce: %w", err)
	}
	ciphertext = e.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return ciphertext, nonce, nil
}

// Decrypt opens a ciphertext sealed by Encrypt using the same nonce.
func (e *Encryptor) Decrypt(ciphertext, nonce []byte) (string, error) {
	plaintext, err := e.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("phi: decrypting: %w", err)
	}
	return string(plaintext), nil
}
