package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// envelopePrefix marks values written by this service. Anything without it is
// treated as a legacy plaintext token.
const envelopePrefix = "enc:v1:"

// Service encrypts provider credentials with AES-256-GCM
type Service struct {
	aead cipher.AEAD
}

// NewService creates an encryption service. A key that is not exactly 32 bytes
// is stretched with SHA-256.
func NewService(key string) (*Service, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("encryption key cannot be empty")
	}
	raw := []byte(key)
	if len(raw) != 32 {
		sum := sha256.Sum256(raw)
		raw = sum[:]
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return &Service{aead: gcm}, nil
}

// Encrypt returns the sealed token. An empty plaintext encrypts to an empty string.
func (s *Service) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return envelopePrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. An empty input decrypts to an empty string.
func (s *Service) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	if !s.IsEncrypted(ciphertext) {
		return "", errors.New("value is not encrypted")
	}

	data, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(ciphertext, envelopePrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	if len(data) < s.aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, sealed := data[:s.aead.NonceSize()], data[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// DecryptSafe never returns an error. Corrupt or legacy values come back empty so
// the owning store degrades to "needs reconnection".
func (s *Service) DecryptSafe(value string) (plaintext string) {
	defer func() {
		if recover() != nil {
			plaintext = ""
		}
	}()
	out, err := s.Decrypt(value)
	if err != nil {
		return ""
	}
	return out
}

// IsEncrypted distinguishes sealed values from legacy plaintext tokens
func (s *Service) IsEncrypted(value string) bool {
	return strings.HasPrefix(value, envelopePrefix) && len(value) > len(envelopePrefix)
}
