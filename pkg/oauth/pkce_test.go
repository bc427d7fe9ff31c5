package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"golang.org/x/oauth2"
)

func TestGeneratePKCE(t *testing.T) {
	pkce, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("GeneratePKCE() error = %v", err)
	}

	// 32 random bytes encode to 43 base64url characters
	if len(pkce.CodeVerifier) != 43 {
		t.Errorf("CodeVerifier length = %d, want 43", len(pkce.CodeVerifier))
	}

	if pkce.CodeChallengeMethod != "S256" {
		t.Errorf("CodeChallengeMethod = %q, want %q", pkce.CodeChallengeMethod, "S256")
	}

	// Verify challenge is correct S256 of verifier
	hash := sha256.Sum256([]byte(pkce.CodeVerifier))
	expectedChallenge := base64.RawURLEncoding.EncodeToString(hash[:])
	if pkce.CodeChallenge != expectedChallenge {
		t.Errorf("CodeChallenge = %q, want %q", pkce.CodeChallenge, expectedChallenge)
	}

	// Verify our implementation matches the stdlib
	stdlibChallenge := oauth2.S256ChallengeFromVerifier(pkce.CodeVerifier)
	if pkce.CodeChallenge != stdlibChallenge {
		t.Errorf("CodeChallenge = %q, want stdlib result %q", pkce.CodeChallenge, stdlibChallenge)
	}
}

func TestChallengeFromVerifier_Deterministic(t *testing.T) {
	pkce, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("GeneratePKCE() error = %v", err)
	}

	first := ChallengeFromVerifier(pkce.CodeVerifier)
	second := ChallengeFromVerifier(pkce.CodeVerifier)

	if first != second {
		t.Errorf("ChallengeFromVerifier not deterministic: %q != %q", first, second)
	}
	if first != pkce.CodeChallenge {
		t.Errorf("ChallengeFromVerifier = %q, want %q", first, pkce.CodeChallenge)
	}
}

func TestGeneratePKCE_Uniqueness(t *testing.T) {
	// Generate multiple PKCE challenges and ensure they're unique
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		pkce, err := GeneratePKCE()
		if err != nil {
			t.Fatalf("GeneratePKCE() error = %v", err)
		}

		if seen[pkce.CodeVerifier] {
			t.Error("Generated duplicate CodeVerifier")
		}
		seen[pkce.CodeVerifier] = true
	}
}

func TestGenerateState(t *testing.T) {
	state, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() error = %v", err)
	}

	// 32 bytes = 43 base64url chars
	if len(state) != 43 {
		t.Errorf("state length = %d, want 43", len(state))
	}
}

func TestGenerateState_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		state, err := GenerateState()
		if err != nil {
			t.Fatalf("GenerateState() error = %v", err)
		}

		if seen[state] {
			t.Error("Generated duplicate state")
		}
		seen[state] = true
	}
}
