package validation

import "testing"

func TestIsValidPayPalEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  bool
	}{
		{"simple address", "user@paypal.com", true},
		{"subdomain", "user@pay.example.co", true},
		{"plus tag", "user+payout@example.com", true},
		{"empty", "", false},
		{"no at sign", "userexample.com", false},
		{"no local part", "@example.com", false},
		{"no host dot", "user@localhost", false},
		{"display name form", "User <user@example.com>", false},
		{"spaces", "user @example.com", false},
		{"double at", "user@@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidPayPalEmail(tt.email); got != tt.want {
				t.Fatalf("IsValidPayPalEmail(%q) = %v, want %v", tt.email, got, tt.want)
			}
		})
	}
}
