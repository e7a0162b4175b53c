package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
)

const (
	// MinSecretLength is the shortest secret accepted without a warning.
	MinSecretLength = 32

	// MinEntropy is the minimum Shannon entropy threshold for secrets.
	MinEntropy = 3.5

	// GeneratedSecretBytes is the amount of randomness in GenerateSecret output.
	// 36 bytes encode to 48 base64 characters.
	GeneratedSecretBytes = 36
)

var forbiddenSecrets = map[string]bool{
	"replace-with-secret":     true,
	"github-webhook-password": true,
	"github_webhook_secret":   true,
	"webhook-secret":          true,
	"topsecret":               true,
	"secret":                  true,
	"password":                true,
	"changeme":                true,
	"abc123":                  true,
}

// CheckSecret reports why a webhook secret is weak, or nil if it looks strong.
// Checks:
// - Minimum length (32 characters)
// - Not a placeholder value
// - Sufficient Shannon entropy (minimum 3.5)
// - Not a run of sequential characters
func CheckSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("secret is empty")
	}

	secretLower := strings.ToLower(secret)
	if forbiddenSecrets[secretLower] {
		return fmt.Errorf("secret appears to be a placeholder value")
	}

	if strings.Contains(secretLower, "replace") ||
		strings.Contains(secretLower, "changeme") ||
		strings.Contains(secretLower, "password") {
		return fmt.Errorf("secret appears to be a placeholder value")
	}

	if len(secret) < MinSecretLength {
		return fmt.Errorf("secret too short (minimum %d characters, got %d)", MinSecretLength, len(secret))
	}

	if isSequential(secret) {
		return fmt.Errorf("secret consists mostly of sequential characters")
	}

	entropy := calculateEntropy(secret)
	if entropy < MinEntropy {
		return fmt.Errorf("secret has insufficient entropy (%.2f < %.2f)", entropy, MinEntropy)
	}

	return nil
}

// GenerateSecret creates a cryptographically secure random secret.
// Returns a 48-character URL-safe base64 string.
func GenerateSecret() (string, error) {
	bytes := make([]byte, GeneratedSecretBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random secret: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// calculateEntropy computes the Shannon entropy of a string.
// Returns a value between 0 (completely predictable) and ~8 (maximum entropy for byte strings).
func calculateEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	freq := make(map[rune]int)
	for _, c := range s {
		freq[c]++
	}

	// H = -Σ(p(x) * log2(p(x)))
	var entropy float64
	length := float64(len(s))

	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}

	return entropy
}

// isSequential checks if a string consists of sequential characters.
func isSequential(s string) bool {
	if len(s) < 4 {
		return false
	}

	sequential := 0
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1]+1 || s[i] == s[i-1]-1 {
			sequential++
		}
	}

	// More than 70% sequential is weak
	return float64(sequential) > float64(len(s))*0.7
}
