package server

import (
	"bytes"
	"crypto/rand"
	"testing"
)

const testSecret = "kJ8mN2pQ5tR7vX1zB4cE6gH9jL3nP8qS2uW5yA7bD0fG3hK6"

func TestSign_KnownVector(t *testing.T) {
	got := Sign([]byte(`{"ref":"refs/heads/main"}`), "abc123")
	want := "sha256=5e248424b63e2b512eb5321ca1609d4eed228c9851ed3f6b8d30437d9bfff8a6"

	if got != want {
		t.Errorf("Sign() = %s, want %s", got, want)
	}
}

func TestSign_EmptyBody(t *testing.T) {
	got := Sign(nil, "abc123")
	want := "sha256=6d2d9fc610337f813a1b85869ec214129940860543ad04308d87357f6c0133f6"

	if got != want {
		t.Errorf("Sign() = %s, want %s", got, want)
	}
}

func TestVerifySignature_Valid(t *testing.T) {
	payload := []byte(`{"ref":"refs/heads/main"}`)
	signature := Sign(payload, testSecret)

	if !VerifySignature(payload, signature, testSecret) {
		t.Error("Expected valid signature to be accepted")
	}
}

func TestVerifySignature_Invalid(t *testing.T) {
	payload := []byte(`{"ref":"refs/heads/main"}`)
	signature := Sign(payload, "wrong-secret-at-least-32-chars-long-x")

	if VerifySignature(payload, signature, testSecret) {
		t.Error("Expected invalid signature to be rejected")
	}
}

func TestVerifySignature_MissingHeader(t *testing.T) {
	payload := []byte(`{"ref":"refs/heads/main"}`)

	if VerifySignature(payload, "", testSecret) {
		t.Error("Expected missing signature to be rejected")
	}
}

func TestVerifySignature_MalformedSignature(t *testing.T) {
	payload := []byte(`{"ref":"refs/heads/main"}`)
	valid := Sign(payload, testSecret)

	testCases := []struct {
		name      string
		signature string
	}{
		{"no prefix", valid[len(SignaturePrefix):]},
		{"wrong prefix", "sha1=" + valid[len(SignaturePrefix):]},
		{"no equals", "sha256" + valid[len(SignaturePrefix):]},
		{"empty after prefix", "sha256="},
		{"uppercase hex", "sha256=" + string(bytes.ToUpper([]byte(valid[len(SignaturePrefix):])))},
		{"trailing garbage", valid + "00"},
		{"truncated", valid[:len(valid)-1]},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if VerifySignature(payload, tc.signature, testSecret) {
				t.Errorf("Expected malformed signature '%s' to be rejected", tc.signature)
			}
		})
	}
}

func TestVerifySignature_RoundTripProperty(t *testing.T) {
	for i := 0; i < 200; i++ {
		body := make([]byte, i*7)
		if _, err := rand.Read(body); err != nil {
			t.Fatal(err)
		}

		if !VerifySignature(body, Sign(body, testSecret), testSecret) {
			t.Fatalf("verify(B, sign(B)) failed for body of %d bytes", len(body))
		}

		other := append(append([]byte{}, body...), byte(i))
		if VerifySignature(body, Sign(other, testSecret), testSecret) {
			t.Fatalf("verify(B, sign(B')) succeeded for distinct bodies of %d bytes", len(body))
		}
	}
}

func TestVerifySignature_EverySingleCharFlipRejected(t *testing.T) {
	payload := []byte(`{"ref":"refs/heads/main"}`)
	valid := Sign(payload, "abc123")

	for i := len(SignaturePrefix); i < len(valid); i++ {
		flipped := []byte(valid)
		if flipped[i] == '0' {
			flipped[i] = '1'
		} else {
			flipped[i] = '0'
		}
		if VerifySignature(payload, string(flipped), "abc123") {
			t.Errorf("signature with position %d flipped was accepted", i)
		}
	}
}
