// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

// Package token issues and verifies the signed bearer tokens handed out
// on login. Tokens are HS256 JWTs and are never stored server side.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = time.Hour

var (
	ErrMissingSecret = errors.New("token: signing secret is required")

	// ErrInvalid is returned for tokens which are malformed or whose
	// signature doesn't match.
	ErrInvalid = errors.New("token: invalid")
	ErrExpired = errors.New("token: expired")
)

// Identity is the account a verified token was issued for.
type Identity struct {
	AccountID int64     `json:"account_id"`
	Name      string    `json:"name"`
	TokenID   string    `json:"-"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type claims struct {
	jwt.RegisteredClaims
	AccountID int64  `json:"account_id"`
	Name      string `json:"name"`
}

// Issuer signs tokens. It's safe for concurrent use.
type Issuer struct {
	secret []byte
	ttl    time.Duration

	// Now can be overridden in tests.
	Now func() time.Time
}

// NewIssuer returns an Issuer signing with secret. A ttl of zero (or less)
// uses DefaultTTL.
func NewIssuer(secret []byte, ttl time.Duration) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		Now:    time.Now,
	}, nil
}

// Issue returns a signed token for accountID which expires after the
// issuer's TTL.
func (i *Issuer) Issue(accountID int64, name string) (string, error) {
	now := i.Now().UTC()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(accountID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		AccountID: accountID,
		Name:      name,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Verifier checks tokens created by an Issuer with the same secret.
type Verifier struct {
	secret []byte

	// Now can be overridden in tests.
	Now func() time.Time
}

func NewVerifier(secret []byte) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	return &Verifier{
		secret: append([]byte(nil), secret...),
		Now:    time.Now,
	}, nil
}

// Verify checks raw's signature and expiry and returns the identity it
// carries. The returned error is ErrExpired or ErrInvalid.
func (v *Verifier) Verify(raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, ErrInvalid
	}

	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpired
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.AccountID <= 0 {
		return Identity{}, fmt.Errorf("%w: missing account_id", ErrInvalid)
	}

	id := Identity{
		AccountID: c.AccountID,
		Name:      c.Name,
		TokenID:   c.ID,
		ExpiresAt: c.ExpiresAt.Time.UTC(),
	}
	if c.IssuedAt != nil {
		id.IssuedAt = c.IssuedAt.Time.UTC()
	}
	return id, nil
}
