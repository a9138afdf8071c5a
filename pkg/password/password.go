// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

// Package password hashes and verifies account passwords with bcrypt.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost is the bcrypt work factor used when none is configured.
	DefaultCost = 10

	// MaxLength is the longest plaintext, in bytes, bcrypt reads.
	MaxLength = 72
)

var (
	// ErrTooLong is returned by Hash for plaintexts bcrypt cannot represent
	// (more than 72 bytes).
	ErrTooLong = errors.New("password must be at most 72 bytes long")
)

// Hasher produces salted bcrypt hashes at a fixed cost.
type Hasher struct {
	cost int
}

// New returns a Hasher using cost. Values outside bcrypt's accepted
// range fall back to DefaultCost.
func New(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Cost returns the work factor new hashes are created with.
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns the bcrypt encoding of plaintext. Each call uses a fresh
// salt so identical inputs produce different outputs.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxLength {
		return "", ErrTooLong
	}
	bs, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrTooLong
		}
		return "", fmt.Errorf("password: hash: %w", err)
	}
	return string(bs), nil
}

// Verify reports whether plaintext matches hashed. Malformed hashes
// never match, and neither do plaintexts over MaxLength since bcrypt
// would only compare their first MaxLength bytes.
func (h *Hasher) Verify(plaintext, hashed string) bool {
	if hashed == "" || len(plaintext) > MaxLength {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext)) == nil
}
