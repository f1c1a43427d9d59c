package stepup

import (
	"errors"
	"testing"
)

func TestParseResourceType(t *testing.T) {
	cases := []struct {
		in   string
		want ResourceType
	}{
		{"profile", ResourceProfile},
		{"report", ResourceReport},
		{"all_reports", ResourceAllReports},
	}
	for _, tc := range cases {
		got, err := ParseResourceType(tc.in)
		if err != nil {
			t.Fatalf("ParseResourceType(%q) failed: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseResourceType(%q) = %v, want %v", tc.in, got, tc.want)
		}
		if got.String() != tc.in {
			t.Fatalf("String round trip broke: %q", got.String())
		}
	}

	if _, err := ParseResourceType("records"); !errors.Is(err, ErrScopeInvalid) {
		t.Fatalf("expected ErrScopeInvalid, got %v", err)
	}
}

func TestScopeValidate(t *testing.T) {
	valid := []ResourceScope{
		ScopeFor(ResourceProfile, 1),
		ScopeFor(ResourceReport, 999),
		AllReportsScope(),
	}
	for _, s := range valid {
		if err := s.Validate(); err != nil {
			t.Fatalf("scope %v should be valid: %v", s, err)
		}
	}

	invalid := []ResourceScope{
		ScopeFor(ResourceProfile, 0),
		ScopeFor(ResourceReport, -1),
		{Type: ResourceAllReports, ResourceID: 7},
		{Type: ResourceType(42), ResourceID: 1},
		{},
	}
	for _, s := range invalid {
		if err := s.Validate(); !errors.Is(err, ErrScopeInvalid) {
			t.Fatalf("scope %v should be invalid, got %v", s, err)
		}
	}
}

func TestScopeKey(t *testing.T) {
	if got := ScopeFor(ResourceProfile, 5).Key(); got != "profile:5" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := ScopeFor(ResourceReport, 12).Key(); got != "report:12" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := AllReportsScope().Key(); got != "all_reports" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestScopeEqualityIsExact(t *testing.T) {
	if ScopeFor(ResourceReport, 7) == ScopeFor(ResourceReport, 8) {
		t.Fatal("different ids must not compare equal")
	}
	if ScopeFor(ResourceReport, 7) == ScopeFor(ResourceProfile, 7) {
		t.Fatal("different types must not compare equal")
	}
	if ScopeFor(ResourceReport, 7) != ScopeFor(ResourceReport, 7) {
		t.Fatal("identical scopes must compare equal")
	}
}

func TestParseVerificationMethod(t *testing.T) {
	for _, in := range []string{"otp", ""} {
		got, err := ParseVerificationMethod(in)
		if err != nil {
			t.Fatalf("ParseVerificationMethod(%q) failed: %v", in, err)
		}
		if got != MethodOTP {
			t.Fatalf("ParseVerificationMethod(%q) = %v", in, got)
		}
	}

	if _, err := ParseVerificationMethod("sms"); !errors.Is(err, ErrMethodInvalid) {
		t.Fatalf("expected ErrMethodInvalid, got %v", err)
	}
}
