package domain

import (
	"encoding/json"
	"testing"
)

func TestParseRole(t *testing.T) {
	if r, err := ParseRole("admin"); err != nil || r != RoleAdmin {
		t.Fatalf("ParseRole(admin) = %v, %v", r, err)
	}
	if r, err := ParseRole("user"); err != nil || r != RoleUser {
		t.Fatalf("ParseRole(user) = %v, %v", r, err)
	}
	if _, err := ParseRole("superuser"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestRoleFromUserType(t *testing.T) {
	if RoleFromUserType(0) != RoleAdmin {
		t.Fatal("usertype 0 should be admin")
	}
	if RoleFromUserType(1) != RoleUser {
		t.Fatal("usertype 1 should be user")
	}
	if RoleFromUserType(42) != RoleUser {
		t.Fatal("unknown usertype should be user")
	}
}

func TestRoleJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(RoleAdmin)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"admin"` {
		t.Fatalf("unexpected encoding: %s", data)
	}

	var r Role
	if err := json.Unmarshal(data, &r); err != nil || r != RoleAdmin {
		t.Fatalf("unmarshal string: %v, %v", r, err)
	}
	if err := json.Unmarshal([]byte(`1`), &r); err != nil || r != RoleUser {
		t.Fatalf("unmarshal integer: %v, %v", r, err)
	}
}

func TestUserJSONHidesPasswordHash(t *testing.T) {
	u := User{ID: "u1", Email: "a@b.com", PasswordHash: "hash", Role: RoleUser, Label: "user"}
	data, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["password"]; ok {
		t.Fatal("password hash leaked into JSON")
	}
	if decoded["usertype"] != "user" {
		t.Fatalf("unexpected usertype encoding: %v", decoded["usertype"])
	}
}

func TestValidEmail(t *testing.T) {
	valid := []string{"a@b.com", "first.last@example.co.uk", "x@y.z"}
	for _, s := range valid {
		if !ValidEmail(s) {
			t.Fatalf("expected %q to be valid", s)
		}
	}
	invalid := []string{"", "ab.com", "@b.com", "a@", "a@bcom", "a@@b.com", "a b@c.com", "a@.com"}
	for _, s := range invalid {
		if ValidEmail(s) {
			t.Fatalf("expected %q to be invalid", s)
		}
	}
}
