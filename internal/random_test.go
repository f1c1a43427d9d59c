package internal

import (
	"strings"
	"testing"
)

func TestNewOTP(t *testing.T) {
	for _, digits := range []int{6, 8, 10} {
		code, err := NewOTP(digits)
		if err != nil {
			t.Fatalf("NewOTP(%d) failed: %v", digits, err)
		}
		if len(code) != digits {
			t.Fatalf("NewOTP(%d) returned %q", digits, code)
		}
		if !IsNumeric(code) {
			t.Fatalf("NewOTP(%d) returned non-numeric %q", digits, code)
		}
	}

	for _, digits := range []int{0, 5, 11} {
		if _, err := NewOTP(digits); err == nil {
			t.Fatalf("NewOTP(%d) should fail", digits)
		}
	}
}

func TestNewAccessToken(t *testing.T) {
	token, err := NewAccessToken(32)
	if err != nil {
		t.Fatalf("NewAccessToken failed: %v", err)
	}
	if len(token) != 43 { // 32 bytes base64url without padding
		t.Fatalf("unexpected token length %d for %q", len(token), token)
	}
	if strings.ContainsAny(token, "+/=") {
		t.Fatalf("token is not base64url: %q", token)
	}

	other, err := NewAccessToken(32)
	if err != nil {
		t.Fatalf("NewAccessToken failed: %v", err)
	}
	if token == other {
		t.Fatal("two tokens collided")
	}

	if _, err := NewAccessToken(8); err == nil {
		t.Fatal("tokens below 128 bits must be rejected")
	}
}

func TestHashCodeSaltDecorrelates(t *testing.T) {
	saltA, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt failed: %v", err)
	}
	saltB, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt failed: %v", err)
	}
	if saltA == saltB {
		t.Fatal("two salts collided")
	}

	if HashCode(saltA, "123456") == HashCode(saltB, "123456") {
		t.Fatal("equal codes under different salts must hash differently")
	}
	if HashCode(saltA, "123456") != HashCode(saltA, "123456") {
		t.Fatal("hashing must be deterministic for a fixed salt")
	}
	if HashCode(saltA, "123456") == HashCode(saltA, "123457") {
		t.Fatal("different codes must hash differently")
	}
}

func TestIsNumeric(t *testing.T) {
	for _, s := range []string{"0", "123456", "0000000000"} {
		if !IsNumeric(s) {
			t.Fatalf("IsNumeric(%q) should be true", s)
		}
	}
	for _, s := range []string{"", "12a456", " 123456", "12345\n", "١٢٣٤٥٦"} {
		if IsNumeric(s) {
			t.Fatalf("IsNumeric(%q) should be false", s)
		}
	}
}
