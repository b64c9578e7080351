package scopes

import (
	"testing"
)

// TestGrants_ExactMatch tests literal scope equality
func TestGrants_ExactMatch(t *testing.T) {
	granted := ParseAll([]string{"read:data", "write:data"})

	if !Grants(granted, Parse("read:data")) {
		t.Error("expected exact match to grant")
	}
	if Grants(granted, Parse("delete:data")) {
		t.Error("expected unrelated scope to be denied")
	}
}

// TestGrants_TrailingWildcard tests that a trailing :* absorbs any suffix
func TestGrants_TrailingWildcard(t *testing.T) {
	granted := ParseAll([]string{"a:b:*"})

	cases := []struct {
		required string
		want     bool
	}{
		{"a:b:c", true},
		{"a:b:d", true},
		{"a:b:c:d", true}, // absorbs any depth
		{"a:b", false},    // prefix alone is not granted
		{"a:x:c", false},
		{"b:b:c", false},
	}

	for _, tc := range cases {
		if got := Grants(granted, Parse(tc.required)); got != tc.want {
			t.Errorf("Grants([a:b:*], %q) = %v, want %v", tc.required, got, tc.want)
		}
	}
}

// TestGrants_SegmentWildcard tests per-segment wildcards with exact count
func TestGrants_SegmentWildcard(t *testing.T) {
	granted := ParseAll([]string{"keys:*:read"})

	if !Grants(granted, Parse("keys:prod:read")) {
		t.Error("expected segment wildcard to match")
	}
	if Grants(granted, Parse("keys:prod:write")) {
		t.Error("expected literal mismatch to deny")
	}
	if Grants(granted, Parse("keys:prod:eu:read")) {
		t.Error("expected segment count mismatch to deny")
	}
}

// TestGrants_CaseInsensitive tests matching is case-insensitive both ways
func TestGrants_CaseInsensitive(t *testing.T) {
	granted := ParseAll([]string{"Admin:Keys:*"})

	if !Grants(granted, Parse("admin:keys:READ")) {
		t.Error("expected case-insensitive match")
	}
}

// TestGrants_EmptyRequired tests that an empty required scope is denied
func TestGrants_EmptyRequired(t *testing.T) {
	granted := ParseAll([]string{"admin:*", "read:data"})

	if Grants(granted, Parse("")) {
		t.Error("empty required scope must be denied")
	}
	if Grants(nil, Parse("read:data")) {
		t.Error("empty granted set must deny everything")
	}
}

// TestGrants_AdminWildcardAbsorbsDepth tests the canonical depth rule
func TestGrants_AdminWildcardAbsorbsDepth(t *testing.T) {
	granted := ParseAll([]string{"admin:*"})

	for _, required := range []string{"admin:keys:create", "admin:audit:read", "admin:x"} {
		if !Grants(granted, Parse(required)) {
			t.Errorf("admin:* should grant %q", required)
		}
	}
	if Grants(granted, Parse("keys:read")) {
		t.Error("admin:* must not grant outside its namespace")
	}
}

// TestGrantsAll_CollectsAllMissing tests no fail-fast behavior
func TestGrantsAll_CollectsAllMissing(t *testing.T) {
	granted := ParseAll([]string{"read:data"})
	required := ParseAll([]string{"read:data", "write:data", "delete:data"})

	missing := GrantsAll(granted, required)
	if len(missing) != 2 {
		t.Fatalf("expected 2 missing scopes, got %v", missing)
	}
	if missing[0] != "write:data" || missing[1] != "delete:data" {
		t.Errorf("unexpected missing set: %v", missing)
	}
}

// TestHasAdminScope tests reserved namespace detection
func TestHasAdminScope(t *testing.T) {
	if !HasAdminScope([]string{"read:data", "admin:keys:read"}, "admin") {
		t.Error("expected admin namespace to be detected")
	}
	if HasAdminScope([]string{"administrator:keys"}, "admin") {
		t.Error("namespace match must be on the whole first segment")
	}
}

// TestRequirePermission tests the guard-clause form
func TestRequirePermission(t *testing.T) {
	err := RequirePermission([]string{"admin:*"}, "admin:keys:create")
	if err != nil {
		t.Fatalf("expected permission granted, got %v", err)
	}

	err = RequirePermission([]string{"read:data"}, "admin:keys:create")
	if err == nil {
		t.Fatal("expected insufficient scope error")
	}
	scopeErr, ok := err.(*InsufficientScopeError)
	if !ok {
		t.Fatalf("expected *InsufficientScopeError, got %T", err)
	}
	if scopeErr.Required != "admin:keys:create" {
		t.Errorf("unexpected required scope: %s", scopeErr.Required)
	}
	if len(scopeErr.Provided) != 1 || scopeErr.Provided[0] != "read:data" {
		t.Errorf("unexpected provided scopes: %v", scopeErr.Provided)
	}
}
