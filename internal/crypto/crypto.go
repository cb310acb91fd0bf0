package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	saltLength    = 32
	ivLength      = 16
	authTagLength = 16
	keyLength     = 32

	// scrypt cost parameters, matching crypto.scryptSync defaults
	scryptN = 16384
	scryptR = 8
	scryptP = 1
)

// ErrDecryption indicates a ciphertext blob that is malformed, truncated, or
// whose authentication tag failed to verify (including decryption under the
// wrong key). The record is unreadable; retrying with the same inputs will
// not succeed.
var ErrDecryption = errors.New("decryption failed")

// deriveKey derives a 256-bit AES key from the encryption key using scrypt.
func deriveKey(encryptionKey string, salt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(encryptionKey), salt, scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// Encrypt encrypts a plaintext string using AES-256-GCM with a key derived
// from encryptionKey via scrypt. A fresh random salt is generated per call,
// so the derived key differs on every invocation even with a static
// encryption key, and two encryptions of identical plaintext never produce
// identical output.
//
// Returns a base64-encoded blob laid out as: salt || iv || authTag || ciphertext.
func Encrypt(plaintext, encryptionKey string) (string, error) {
	if encryptionKey == "" {
		return "", fmt.Errorf("encryption key cannot be empty")
	}

	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := deriveKey(encryptionKey, salt)
	if err != nil {
		return "", err
	}

	iv := make([]byte, ivLength)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, ivLength)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	// Seal appends the auth tag to the ciphertext; split it off so the
	// serialized layout keeps the tag ahead of the ciphertext.
	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-authTagLength]
	authTag := sealed[len(sealed)-authTagLength:]

	combined := make([]byte, 0, saltLength+ivLength+authTagLength+len(ciphertext))
	combined = append(combined, salt...)
	combined = append(combined, iv...)
	combined = append(combined, authTag...)
	combined = append(combined, ciphertext...)

	return base64.StdEncoding.EncodeToString(combined), nil
}

// Decrypt decrypts a base64-encoded blob produced by Encrypt. Any failure
// (bad base64, truncated blob, tag mismatch, wrong key) is reported as
// ErrDecryption.
func Decrypt(encoded, encryptionKey string) (string, error) {
	if encryptionKey == "" {
		return "", fmt.Errorf("encryption key cannot be empty")
	}

	combined, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrDecryption, err)
	}

	if len(combined) < saltLength+ivLength+authTagLength {
		return "", fmt.Errorf("%w: blob too short (%d bytes)", ErrDecryption, len(combined))
	}

	salt := combined[:saltLength]
	iv := combined[saltLength : saltLength+ivLength]
	authTag := combined[saltLength+ivLength : saltLength+ivLength+authTagLength]
	ciphertext := combined[saltLength+ivLength+authTagLength:]

	key, err := deriveKey(encryptionKey, salt)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, ivLength)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	sealed := make([]byte, 0, len(ciphertext)+authTagLength)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, authTag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	return string(plaintext), nil
}

// GenerateSecureState generates a cryptographically secure random value for
// OAuth state handles: 256 bits, base64url-encoded without padding.
func GenerateSecureState() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateEncryptionKey generates a random key suitable for
// TOKEN_ENCRYPTION_KEY, base64-encoded (32 bytes of entropy).
func GenerateEncryptionKey() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate encryption key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// GenerateJWTSecret generates a random secret suitable for JWT_SECRET,
// base64-encoded (48 bytes of entropy).
func GenerateJWTSecret() (string, error) {
	b := make([]byte, 48)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
