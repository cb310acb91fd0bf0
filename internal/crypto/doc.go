// Package crypto provides encryption of secrets at rest for the
// gmail-mcp-server token broker.
//
// Refresh tokens are encrypted with AES-256-GCM using a key derived from the
// operator-supplied master key via scrypt. A fresh salt and IV are generated
// for every encryption, so no derived key is ever reused and identical
// plaintexts produce distinct ciphertexts. No key material is persisted.
package crypto
