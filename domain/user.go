package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Role distinguishes administrators from regular users. The zero value is
// RoleAdmin to match the integer encoding used on the wire (0=admin, 1=user).
type Role int

const (
	RoleAdmin Role = iota
	RoleUser
)

func (r Role) String() string {
	if r == RoleAdmin {
		return "admin"
	}
	return "user"
}

// MarshalJSON renders the role as its string name in API responses.
func (r Role) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

// UnmarshalJSON accepts the string name or the legacy integer encoding.
func (r *Role) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if n, err := strconv.Atoi(s); err == nil {
		*r = RoleFromUserType(n)
		return nil
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRole translates the string encoding used in token claims back into a
// Role. Anything other than the two known names is rejected.
func ParseRole(s string) (Role, error) {
	switch s {
	case "admin":
		return RoleAdmin, nil
	case "user":
		return RoleUser, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// RoleFromUserType translates the integer encoding accepted in request
// bodies. Zero is the privileged role, any other value is a regular user.
func RoleFromUserType(n int) Role {
	if n == 0 {
		return RoleAdmin
	}
	return RoleUser
}

// User is a stored credential record. The password hash never leaves the
// process in a response body.
type User struct {
	ID           string `bson:"_id" json:"id"`
	Username     string `bson:"username" json:"username"`
	Email        string `bson:"email" json:"email"`
	PasswordHash string `bson:"password" json:"-"`
	Role         Role   `bson:"usertype" json:"usertype"`
	Label        string `bson:"usertypeText" json:"usertypeText"`
}

// ValidEmail reports whether an address has exactly one @ separating a
// non-empty local part from a dotted, non-empty domain. No whitespace
// anywhere.
func ValidEmail(s string) bool {
	if strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	at := strings.Index(s, "@")
	if at <= 0 || at != strings.LastIndex(s, "@") {
		return false
	}
	domainPart := s[at+1:]
	dot := strings.Index(domainPart, ".")
	if dot <= 0 || dot == len(domainPart)-1 {
		return false
	}
	return true
}
