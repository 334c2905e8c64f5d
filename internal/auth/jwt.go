package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fathima-sithara/location-service/internal/room"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is what a validated token says about its bearer.
type Identity struct {
	Subject string
	Role    room.Role
}

// Validator checks a raw bearer token.
type Validator interface {
	Validate(token string) (Identity, error)
}

type JWTValidator struct {
	method    jwt.SigningMethod
	key       any
	issuer    string
	audience  string
	roleClaim string
}

func NewJWTValidatorHS256(secret, issuer, audience, roleClaim string) (*JWTValidator, error) {
	if secret == "" {
		return nil, errors.New("hs256 secret is empty")
	}
	return &JWTValidator{
		method:    jwt.SigningMethodHS256,
		key:       []byte(secret),
		issuer:    issuer,
		audience:  audience,
		roleClaim: orDefault(roleClaim),
	}, nil
}

// NewJWTValidatorRS256 loads an RSA public key from filesystem
func NewJWTValidatorRS256(pubPath, issuer, audience, roleClaim string) (*JWTValidator, error) {
	b, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pub, err := ParseRSAPublicKey(b)
	if err != nil {
		return nil, err
	}
	return &JWTValidator{
		method:    jwt.SigningMethodRS256,
		key:       pub,
		issuer:    issuer,
		audience:  audience,
		roleClaim: orDefault(roleClaim),
	}, nil
}

func ParseRSAPublicKey(b []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, errors.New("invalid public PEM")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not RSA public key")
	}
	return rsaPub, nil
}

func orDefault(claim string) string {
	if claim == "" {
		return "role"
	}
	return claim
}

// Validate verifies signature, expiry and the optional issuer/audience, then
// returns the subject and the role claim of the token.
func (j *JWTValidator) Validate(tokenStr string) (Identity, error) {
	if tokenStr == "" {
		return Identity{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{j.method.Alg()}), jwt.WithExpirationRequired()}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}
	if j.audience != "" {
		opts = append(opts, jwt.WithAudience(j.audience))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return j.key, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		// fallback: "user_id" claim
		if u, ok := claims["user_id"].(string); ok && u != "" {
			sub = u
		}
	}
	if sub == "" {
		return Identity{}, fmt.Errorf("%w: sub claim missing", ErrInvalidToken)
	}
	return Identity{Subject: sub, Role: room.ParseRole(claims[j.roleClaim])}, nil
}
