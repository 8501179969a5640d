// Package auth resolves signed credentials into identities.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	pkgerrors "github.com/pkg/errors"

	"github.com/vendaro/vendaro/pkg/db"
	"github.com/vendaro/vendaro/pkg/models"
)

var (
	ErrInvalidCredential  = errors.New("invalid or expired credential")
	ErrAccountUnavailable = errors.New("account not found or inactive")
	ErrUnknownRole        = errors.New("unknown role in credential")
)

// Directory looks up account documents for a role-scoped id. The
// production implementation is backed by the accounts table; tests may
// substitute their own.
type Directory interface {
	Lookup(role, id string) (*db.Account, error)
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Resolver decodes signed credentials and resolves the underlying
// account through the directory. It has no side effects.
type Resolver struct {
	secret []byte
	dir    Directory
	ttl    time.Duration
}

// NewResolver creates a resolver signing and verifying with secret.
func NewResolver(secret string, dir Directory, ttl time.Duration) *Resolver {
	return &Resolver{secret: []byte(secret), dir: dir, ttl: ttl}
}

// Resolve verifies the credential and returns the caller's identity.
// A malformed, mis-signed or expired token yields ErrInvalidCredential;
// a token for a missing or inactive account yields ErrAccountUnavailable.
func (r *Resolver) Resolve(token string) (models.Identity, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, pkgerrors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil || !parsed.Valid {
		return models.Identity{}, ErrInvalidCredential
	}

	switch c.Role {
	case db.RoleCustomer, db.RoleVendor, db.RoleStaff:
	default:
		return models.Identity{}, ErrUnknownRole
	}

	account, err := r.dir.Lookup(c.Role, c.Subject)
	if err != nil {
		if errors.Is(err, ErrAccountUnavailable) {
			return models.Identity{}, err
		}
		return models.Identity{}, pkgerrors.Wrap(err, "directory lookup")
	}
	if !account.Active {
		return models.Identity{}, ErrAccountUnavailable
	}

	return models.Identity{
		Role:        account.Role,
		AccountID:   account.ID,
		DisplayName: account.DisplayName,
	}, nil
}

// Issue mints a signed credential for the given role and account id.
func (r *Resolver) Issue(role, accountID string) (string, error) {
	now := time.Now()
	c := claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(r.secret)
	if err != nil {
		return "", pkgerrors.Wrap(err, "sign credential")
	}
	return signed, nil
}
