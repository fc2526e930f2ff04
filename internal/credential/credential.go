// Package credential holds the pure cryptographic helpers of the login
// protocol: password hashing, SID minting and challenge/response derivation.
// Nothing here touches shared state.
package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// HashPassword derives the stored password hash: SHA-256 applied twice, with
// the intermediate digest fed back in as lowercase hex. Deliberately unsalted
// so that hashes produced by external provisioning tooling keep working.
func HashPassword(password string) string {
	first := sha256.Sum256([]byte(password))
	second := sha256.Sum256([]byte(hex.EncodeToString(first[:])))
	return hex.EncodeToString(second[:])
}

// NewSID mints a session identifier: 128 random bits, base64-encoded to a
// fixed 24-character token.
func NewSID() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("failed to generate sid: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw[:]), nil
}

// NewChallenge mints a login challenge: 256 random bits as 64 hex characters.
func NewChallenge() (string, error) {
	var raw [sha256.Size]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("failed to generate challenge: %w", err)
	}
	return hex.EncodeToString(raw[:]), nil
}

// ExpectedResponse derives the response a client must present for a
// challenge: SHA256(challenge ":" passwordHash), hex-encoded. The colon
// separator is part of the wire protocol and must not change.
func ExpectedResponse(challenge, passwordHash string) string {
	sum := sha256.Sum256([]byte(challenge + ":" + passwordHash))
	return hex.EncodeToString(sum[:])
}
