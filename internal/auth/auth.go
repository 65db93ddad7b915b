// Package auth verifies bearer JWTs issued by the identity provider and
// carries the resulting identity through request contexts.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/offer-chat/internal/errs"
	"github.com/and161185/offer-chat/internal/model"
)

// Identity is the authenticated caller. UserID is the token subject.
type Identity struct {
	UserID    string
	FirstName string
	LastName  string
	Picture   string
}

// User converts the identity into the profile used for lazy user upserts.
func (id Identity) User() model.User {
	return model.User{ID: id.UserID, FirstName: id.FirstName, LastName: id.LastName, ProfileImage: id.Picture}
}

// Claims are the JWT claims understood by the server. Profile claims follow
// the OpenID Connect standard claim names.
type Claims struct {
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	Picture    string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens signed with a shared key.
type Verifier struct {
	key    []byte
	leeway time.Duration
}

// NewVerifier constructs a Verifier with 30s clock leeway.
func NewVerifier(key []byte) *Verifier {
	return &Verifier{key: key, leeway: 30 * time.Second}
}

// Verify parses the token and returns the identity it asserts.
// All failures wrap errs.ErrUnauthorized.
func (v *Verifier) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, errs.ErrUnauthorized
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return v.key, nil
	}, jwt.WithLeeway(v.leeway), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Identity{}, wrapUnauthorized(err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, wrapUnauthorized(errors.New("empty subject"))
	}
	return Identity{
		UserID:    claims.Subject,
		FirstName: claims.GivenName,
		LastName:  claims.FamilyName,
		Picture:   claims.Picture,
	}, nil
}

func wrapUnauthorized(cause error) error {
	if cause == nil {
		return errs.ErrUnauthorized
	}
	return errors.Join(errs.ErrUnauthorized, cause)
}

// Issue signs a token for id valid for ttl. Used by the CLI for development
// tokens and by tests; production tokens come from the identity provider.
func Issue(key []byte, id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		GivenName:  id.FirstName,
		FamilyName: id.LastName,
		Picture:    id.Picture,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	v := strings.TrimSpace(header)
	if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
		t := strings.TrimSpace(v[7:])
		if t != "" {
			return t, true
		}
	}
	return "", false
}

type ctxKey string

const identityKey ctxKey = "oc.identity"

// WithIdentity stores the authenticated identity in context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext fetches the identity from context.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
