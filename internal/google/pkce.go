package google

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// GenerateCodeVerifier generates a random code verifier for PKCE
// The code verifier is a cryptographically random string using the characters [A-Z] / [a-z] / [0-9] / "-" / "." / "_" / "~"
// with a minimum length of 43 characters and a maximum length of 128 characters.
func GenerateCodeVerifier() (string, error) {
	// Use 32 bytes (256 bits) which will result in 43 characters when base64url encoded
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	// Use base64 URL encoding without padding as per RFC 7636
	verifier := base64.RawURLEncoding.EncodeToString(b)
	return verifier, nil
}

// GenerateCodeChallenge generates the code challenge from a code verifier using S256 method
// S256: code_challenge = BASE64URL(SHA256(ASCII(code_verifier)))
func GenerateCodeChallenge(verifier string) string {
	h := sha256.New()
	h.Write([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(h.Sum(nil))
	return challenge
}
