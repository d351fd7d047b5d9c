package auth

import (
	"strings"
	"testing"
)

func TestGenerateAdminToken(t *testing.T) {
	t.Parallel()

	gen, err := GenerateAdminToken()
	if err != nil {
		t.Fatalf("GenerateAdminToken failed: %v", err)
	}
	if !strings.HasPrefix(gen.Plaintext, TokenPrefix) {
		t.Errorf("token should start with %s, got %s", TokenPrefix, gen.Plaintext)
	}
	if len(gen.Plaintext) != len(TokenPrefix)+TokenSecretLen {
		t.Errorf("token length = %d", len(gen.Plaintext))
	}
	if err := ValidateTokenFormat(gen.Plaintext); err != nil {
		t.Errorf("generated token should be valid: %v", err)
	}
	ok, err := VerifyToken(gen.Plaintext, gen.Hash)
	if err != nil || !ok {
		t.Errorf("hash should verify the plaintext: %v, %v", ok, err)
	}
}

func TestGenerateAdminToken_Unique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		gen, err := GenerateAdminToken()
		if err != nil {
			t.Fatalf("GenerateAdminToken failed: %v", err)
		}
		if seen[gen.Plaintext] {
			t.Fatalf("duplicate token %s", gen.Plaintext)
		}
		seen[gen.Plaintext] = true
	}
}

func TestValidateTokenFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		token string
		valid bool
	}{
		{"valid", "fh_admin_0123456789abcdef0123456789abcdef", true},
		{"uppercase hex", "fh_admin_0123456789ABCDEF0123456789ABCDEF", false},
		{"short", "fh_admin_0123", false},
		{"wrong prefix", "pk_live_0123456789abcdef0123456789abcdef", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTokenFormat(tt.token)
			if (err == nil) != tt.valid {
				t.Errorf("ValidateTokenFormat(%q) = %v, want valid=%v", tt.token, err, tt.valid)
			}
		})
	}
}
