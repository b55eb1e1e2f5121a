package logging

import (
	"log/slog"
	"strings"
	"testing"
)

func TestAnonymizeUserID(t *testing.T) {
	a := AnonymizeUserID("discord:123456789")
	b := AnonymizeUserID("discord:123456789")
	c := AnonymizeUserID("discord:987654321")

	if a != b {
		t.Errorf("AnonymizeUserID not stable: %s != %s", a, b)
	}
	if a == c {
		t.Error("different user ids hashed to the same value")
	}
	if !strings.HasPrefix(a, "user:") {
		t.Errorf("AnonymizeUserID() = %s, want user: prefix", a)
	}
	if strings.Contains(a, "123456789") {
		t.Errorf("AnonymizeUserID() leaked the raw id: %s", a)
	}
}

func TestAnonymizeUserID_Empty(t *testing.T) {
	if got := AnonymizeUserID(""); got != "" {
		t.Errorf("AnonymizeUserID(\"\") = %s, want empty", got)
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken(""); got != "<empty>" {
		t.Errorf("SanitizeToken(\"\") = %s, want <empty>", got)
	}
	got := SanitizeToken("super-secret-access-token")
	if strings.Contains(got, "secret") {
		t.Errorf("SanitizeToken() leaked content: %s", got)
	}
	if got != "[token:25 chars]" {
		t.Errorf("SanitizeToken() = %s, want [token:25 chars]", got)
	}
}

func TestErr_NilIsOmittable(t *testing.T) {
	attr := Err(nil)
	if attr.Key != "" {
		t.Errorf("Err(nil).Key = %s, want empty group", attr.Key)
	}
}

func TestErr_NonNil(t *testing.T) {
	attr := Err(&testError{})
	if attr.Key != KeyError {
		t.Errorf("Err().Key = %s, want %s", attr.Key, KeyError)
	}
	if attr.Value.String() != "boom" {
		t.Errorf("Err().Value = %s, want boom", attr.Value.String())
	}
}

type testError struct{}

func (*testError) Error() string { return "boom" }

func TestWithOperation(t *testing.T) {
	logger := WithOperation(slog.Default(), "availability.find")
	if logger == nil {
		t.Fatal("WithOperation() returned nil")
	}
}
