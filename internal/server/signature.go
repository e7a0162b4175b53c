package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	SignaturePrefix = "sha256="
)

// Sign returns the X-Hub-Signature-256 value for payload:
// "sha256=" followed by the lowercase hex HMAC-SHA256 of payload keyed by secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature verifies the HMAC-SHA256 signature of a webhook payload
func VerifySignature(payload []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}

	// Signature format: "sha256=<hex_digest>"
	if !strings.HasPrefix(signature, SignaturePrefix) {
		return false
	}

	// Constant-time comparison to prevent timing attacks
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
