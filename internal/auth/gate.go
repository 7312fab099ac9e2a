/**
 * @description
 * The admin gate: a binary authorization check applied before every
 * admin-only operation. The gate is an interface so the credential mechanism
 * can be swapped without touching the rest of the server. Two implementations
 * are provided: a bcrypt-hashed static admin key (the original deployment
 * model, hardened against plaintext comparison) and an HS256 JWT with an
 * admin role claim.
 */
package auth

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrUnauthorized is returned by callers when the gate denies a credential.
var ErrUnauthorized = errors.New("admin authorization denied")

// Gate decides whether a credential identifies an administrator.
type Gate interface {
	IsAdmin(credential string) bool
}

// KeyGate authorizes against a single configured admin key. The key is
// bcrypt-hashed at construction so the comparison never works on the
// plaintext; a pre-hashed key ($2a$/$2b$ prefix) is accepted as-is.
type KeyGate struct {
	hash []byte
}

// NewKeyGate builds a KeyGate from a configured admin key or bcrypt hash.
func NewKeyGate(key string) (*KeyGate, error) {
	if key == "" {
		return nil, errors.New("admin key must not be empty")
	}
	if strings.HasPrefix(key, "$2a$") || strings.HasPrefix(key, "$2b$") || strings.HasPrefix(key, "$2y$") {
		return &KeyGate{hash: []byte(key)}, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &KeyGate{hash: hash}, nil
}

func (g *KeyGate) IsAdmin(credential string) bool {
	if credential == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(g.hash, []byte(credential)) == nil
}

// JWTGate authorizes HS256 bearer tokens carrying a `role: admin` claim.
type JWTGate struct {
	secret []byte
}

// NewJWTGate builds a JWTGate validating tokens signed with the given secret.
func NewJWTGate(secret string) (*JWTGate, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	return &JWTGate{secret: []byte(secret)}, nil
}

func (g *JWTGate) IsAdmin(credential string) bool {
	if credential == "" {
		return false
	}

	token, err := jwt.Parse(credential, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return g.secret, nil
	})
	if err != nil || !token.Valid {
		return false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return false
	}
	role, _ := claims["role"].(string)
	return role == "admin"
}

// MultiGate accepts a credential that any of its gates accepts.
type MultiGate []Gate

func (g MultiGate) IsAdmin(credential string) bool {
	for _, gate := range g {
		if gate.IsAdmin(credential) {
			return true
		}
	}
	return false
}
