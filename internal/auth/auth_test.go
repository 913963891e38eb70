package auth

import (
	"testing"

	"go.uber.org/zap"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+380671234567", "+380671234567"},
		{"380671234567", "+380671234567"},
		{"0671234567", "+380671234567"},
		{"+38 (067) 123-45-67", "+380671234567"},
		{"", ""},
		{"  ", ""},
		{"+1 202 555 0100", "+12025550100"},
	}
	for _, tt := range tests {
		if got := NormalizePhone(tt.in); got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAuthorizerRoles(t *testing.T) {
	const owner = int64(100)
	a := NewAuthorizer(owner, []string{"0671234567"}, zap.NewNop())

	if got := a.RoleOf(owner); got != RoleOwner {
		t.Errorf("owner role = %s", got)
	}
	if !a.IsOwner(owner) {
		t.Error("IsOwner(owner) = false")
	}
	if got := a.RoleOf(200); got != RoleUnknown {
		t.Errorf("stranger role = %s", got)
	}
}

func TestRegisterContact(t *testing.T) {
	const owner = int64(100)
	a := NewAuthorizer(owner, []string{"+380671234567"}, zap.NewNop())

	// Allow-listed phone in a different format still matches.
	if got := a.RegisterContact(200, "067 123 45 67"); got != RoleNeighbor {
		t.Fatalf("register = %s, want neighbor", got)
	}
	if got := a.RoleOf(200); got != RoleNeighbor {
		t.Errorf("role after registration = %s", got)
	}

	// A phone off the list grants nothing.
	if got := a.RegisterContact(300, "+380999999999"); got != RoleUnknown {
		t.Errorf("unlisted register = %s, want unknown", got)
	}
	if got := a.RoleOf(300); got != RoleUnknown {
		t.Errorf("unlisted role = %s", got)
	}

	// The owner keeps the owner role regardless of contact.
	if got := a.RegisterContact(owner, "+380999999999"); got != RoleOwner {
		t.Errorf("owner register = %s, want owner", got)
	}
}
