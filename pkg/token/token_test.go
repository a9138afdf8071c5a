// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var secret = []byte("test-secret")

func setup(t *testing.T, now time.Time) (*Issuer, *Verifier) {
	t.Helper()

	iss, err := NewIssuer(secret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	iss.Now = func() time.Time { return now }

	ver, err := NewVerifier(secret)
	if err != nil {
		t.Fatal(err)
	}
	ver.Now = func() time.Time { return now }
	return iss, ver
}

func TestToken__roundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	iss, ver := setup(t, now)

	raw, err := iss.Issue(42, "Ann")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(raw, ".") != 2 {
		t.Errorf("unexpected token shape: %q", raw)
	}

	id, err := ver.Verify(raw)
	if err != nil {
		t.Fatal(err)
	}
	if id.AccountID != 42 || id.Name != "Ann" {
		t.Errorf("got %#v", id)
	}
	if !id.IssuedAt.Equal(now) {
		t.Errorf("issued_at=%v", id.IssuedAt)
	}
	if !id.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("expires_at=%v", id.ExpiresAt)
	}
	if id.TokenID == "" {
		t.Error("empty token id")
	}
}

func TestToken__expired(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	iss, ver := setup(t, now)

	raw, err := iss.Issue(1, "Ann")
	if err != nil {
		t.Fatal(err)
	}

	// still valid just before the hour is up
	ver.Now = func() time.Time { return now.Add(59 * time.Minute) }
	if _, err := ver.Verify(raw); err != nil {
		t.Errorf("got %v", err)
	}

	ver.Now = func() time.Time { return now.Add(61 * time.Minute) }
	if _, err := ver.Verify(raw); err != ErrExpired {
		t.Errorf("got %v", err)
	}
}

func TestToken__wrongSecret(t *testing.T) {
	now := time.Now()
	iss, _ := setup(t, now)

	raw, err := iss.Issue(1, "Ann")
	if err != nil {
		t.Fatal(err)
	}

	other, err := NewVerifier([]byte("other-secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Verify(raw); !errors.Is(err, ErrInvalid) {
		t.Errorf("got %v", err)
	}
}

func TestToken__independent(t *testing.T) {
	iss, ver := setup(t, time.Now())

	first, _ := iss.Issue(7, "Bob")
	second, _ := iss.Issue(7, "Bob")
	if first == second {
		t.Fatal("expected distinct tokens")
	}
	for _, raw := range []string{first, second} {
		if _, err := ver.Verify(raw); err != nil {
			t.Errorf("got %v", err)
		}
	}
}

func TestToken__malformed(t *testing.T) {
	_, ver := setup(t, time.Now())

	cases := []string{"", "abc", "a.b.c", "eyJhbGciOiJIUzI1NiJ9.e30."}
	for i := range cases {
		if _, err := ver.Verify(cases[i]); !errors.Is(err, ErrInvalid) {
			t.Errorf("input=%q got %v", cases[i], err)
		}
	}
}

func TestToken__algNone(t *testing.T) {
	now := time.Now()
	_, ver := setup(t, now)

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
		AccountID:        1,
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, c).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ver.Verify(raw); !errors.Is(err, ErrInvalid) {
		t.Errorf("got %v", err)
	}
}

func TestToken__missingSecret(t *testing.T) {
	if _, err := NewIssuer(nil, time.Hour); err != ErrMissingSecret {
		t.Errorf("got %v", err)
	}
	if _, err := NewVerifier([]byte{}); err != ErrMissingSecret {
		t.Errorf("got %v", err)
	}
}

func TestToken__defaultTTL(t *testing.T) {
	iss, err := NewIssuer(secret, 0)
	if err != nil {
		t.Fatal(err)
	}
	if iss.ttl != DefaultTTL {
		t.Errorf("got %v", iss.ttl)
	}
}
