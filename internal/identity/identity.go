/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package identity gives every device an anonymous id that survives
// reloads. The id travels as a signed token the device keeps and presents
// on each request.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "rustam"

var (
	ErrNoSecret          = errors.New("identity secret must not be empty")
	ErrInvalidSigningAlg = errors.New("unexpected signing method")
	ErrExpiredToken      = errors.New("token expired")
	ErrInvalidToken      = errors.New("invalid token")
)

// Identity is the device a request speaks for.
type Identity struct {
	UID   string
	Token string

	// Fresh is set when SignIn had to mint a new identity.
	Fresh bool
}

// Ready reports whether the device has an identity.
func (i Identity) Ready() bool {
	return i.UID != ""
}

type Provider struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

func NewProvider(secret string, maxAge time.Duration) (*Provider, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}

	return &Provider{
		secret: []byte(secret),
		maxAge: maxAge,
		now:    time.Now,
	}, nil
}

func (p *Provider) Issue(uid string) (string, error) {
	now := p.now()

	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   uid,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(p.maxAge)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	return token, nil
}

// Verify returns the device id a token was issued to.
func (p *Provider) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSigningAlg
		}
		return p.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(p.now))

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrExpiredToken
	case err != nil:
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	case !parsed.Valid:
		return "", ErrInvalidToken
	}

	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", fmt.Errorf("%w: subject is not a device id", ErrInvalidToken)
	}

	return claims.Subject, nil
}

// SignIn restores the identity carried by token. A missing, expired or
// otherwise unusable token gets a brand new identity instead.
func (p *Provider) SignIn(ctx context.Context, token string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	if token != "" {
		if uid, err := p.Verify(token); err == nil {
			return Identity{UID: uid, Token: token}, nil
		}
	}

	uid := uuid.NewString()

	token, err := p.Issue(uid)
	if err != nil {
		return Identity{}, err
	}

	return Identity{UID: uid, Token: token, Fresh: true}, nil
}
