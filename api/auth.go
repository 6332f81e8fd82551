package api

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"taskman/domain"
)

const tokenTTL = time.Hour

var (
	// ErrTokenMalformed covers tokens that cannot be parsed at all.
	ErrTokenMalformed = errors.New("malformed token")
	// ErrTokenSignature covers tokens whose signature does not verify.
	ErrTokenSignature = errors.New("invalid token signature")
	// ErrTokenExpired covers tokens past their expiry instant.
	ErrTokenExpired = errors.New("token expired")
)

// Identity is the verified, request-scoped claim of who is calling and with
// what role. It is derived from a token only and discarded with the request.
type Identity struct {
	SubjectID string
	Email     string
	Role      domain.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Auth issues and verifies signed identity tokens. The signing secret is
// process-wide state, loaded once at startup and never rotated.
type Auth struct {
	secret []byte
	ttl    time.Duration
	parser *jwt.Parser
	now    func() time.Time
}

// NewAuth creates an Auth from the signing secret. An empty secret is a
// startup error; verification against it must never be allowed to succeed.
func NewAuth(secret []byte) (*Auth, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty signing secret")
	}
	return &Auth{
		secret: secret,
		ttl:    tokenTTL,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation()),
		now:    time.Now,
	}, nil
}

// IssueToken produces a signed assertion for the subject, valid for one hour.
func (a *Auth) IssueToken(subjectID, email string, role domain.Role) (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"sub":   subjectID,
		"email": email,
		"role":  role.String(),
		"iat":   now.Unix(),
		"exp":   now.Add(a.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// IdentityFromAuthHeader extracts and verifies the bearer token from an
// Authorization header value.
func (a *Auth) IdentityFromAuthHeader(h string) (Identity, error) {
	token, err := bearerTokenFromString(h)
	if err != nil {
		return Identity{}, err
	}
	return a.IdentityFromBearer(token)
}

// IdentityFromBearer verifies a raw token and returns the identity it
// asserts. The role inside the token is trusted directly; a role change in
// the user store takes effect only once existing tokens expire.
func (a *Auth) IdentityFromBearer(token []byte) (Identity, error) {
	parsed, err := a.parser.Parse(readOnlyString(token), func(t *jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return Identity{}, classifyTokenError(err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrTokenMalformed
	}

	now := a.now().Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return Identity{}, ErrTokenExpired
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Identity{}, ErrTokenMalformed
	}
	email, _ := claims["email"].(string)
	roleName, _ := claims["role"].(string)
	role, err := domain.ParseRole(roleName)
	if err != nil {
		return Identity{}, ErrTokenMalformed
	}

	ident := Identity{SubjectID: sub, Email: email, Role: role}
	if iat, ok := claims["iat"].(float64); ok {
		ident.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp, ok := claims["exp"].(float64); ok {
		ident.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return ident, nil
}

func classifyTokenError(err error) error {
	var vErr *jwt.ValidationError
	if errors.As(err, &vErr) {
		switch {
		case vErr.Errors&jwt.ValidationErrorMalformed != 0:
			return ErrTokenMalformed
		case vErr.Errors&(jwt.ValidationErrorSignatureInvalid|jwt.ValidationErrorUnverifiable) != 0:
			return ErrTokenSignature
		case vErr.Errors&jwt.ValidationErrorExpired != 0:
			return ErrTokenExpired
		}
	}
	return ErrTokenMalformed
}
