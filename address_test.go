// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/go-kit/kit/log"
)

// newTestAddressService registers an owner and returns its id along with
// the service.
func newTestAddressService(t *testing.T, repo repository) (*addressService, int64) {
	t.Helper()

	owner, err := newTestAccountService(t, repo).register(context.Background(), validUser())
	if err != nil {
		t.Fatal(err)
	}
	return &addressService{logger: log.NewNopLogger(), accounts: repo, addresses: repo}, owner.ID
}

func TestAddresses__create(t *testing.T) {
	ctx := context.Background()
	for name, repo := range testRepositories(t) {
		t.Run(name, func(t *testing.T) {
			svc, owner := newTestAddressService(t, repo)

			cand := validAddress()
			cand.OwnerID = 12345 // ignored
			a, err := svc.create(ctx, owner, cand)
			if err != nil {
				t.Fatal(err)
			}
			if a.ID <= 0 || a.OwnerID != owner || a.CreatedAt.IsZero() {
				t.Errorf("got %#v", a)
			}

			var nerr *notFoundError
			if _, err := svc.create(ctx, 404, validAddress()); !errors.As(err, &nerr) {
				t.Errorf("missing owner: got %v", err)
			}

			var verr *validationError
			bad := validAddress()
			bad.Street = " "
			if _, err := svc.create(ctx, owner, bad); !errors.As(err, &verr) {
				t.Errorf("got %v", err)
			}
			if _, err := svc.create(ctx, 0, validAddress()); !errors.As(err, &verr) {
				t.Errorf("zero owner: got %v", err)
			}
		})
	}
}

func TestAddresses__listByUser(t *testing.T) {
	ctx := context.Background()
	for name, repo := range testRepositories(t) {
		t.Run(name, func(t *testing.T) {
			svc, owner := newTestAddressService(t, repo)

			got, err := svc.listByUser(ctx, owner)
			if err != nil || got == nil || len(got) != 0 {
				t.Fatalf("got %#v err=%v", got, err)
			}

			for i := 0; i < 3; i++ {
				if _, err := svc.create(ctx, owner, validAddress()); err != nil {
					t.Fatal(err)
				}
			}
			got, err = svc.listByUser(ctx, owner)
			if err != nil || len(got) != 3 {
				t.Fatalf("got %d err=%v", len(got), err)
			}
			for i := 1; i < len(got); i++ {
				if got[i-1].ID >= got[i].ID {
					t.Errorf("unordered: %d before %d", got[i-1].ID, got[i].ID)
				}
			}

			var nerr *notFoundError
			if _, err := svc.listByUser(ctx, 404); !errors.As(err, &nerr) {
				t.Errorf("got %v", err)
			}
		})
	}
}

func TestAddresses__update(t *testing.T) {
	ctx := context.Background()
	for name, repo := range testRepositories(t) {
		t.Run(name, func(t *testing.T) {
			svc, owner := newTestAddressService(t, repo)
			a, _ := svc.create(ctx, owner, validAddress())

			got, err := svc.update(ctx, a.ID, addressPatch{City: strPtr("Campinas"), Country: strPtr("Brazil")})
			if err != nil {
				t.Fatal(err)
			}
			if got.City != "Campinas" || got.Country != "Brazil" || got.Street != a.Street || got.OwnerID != owner {
				t.Errorf("got %#v", got)
			}

			var verr *validationError
			if _, err := svc.update(ctx, a.ID, addressPatch{Zipcode: strPtr("")}); !errors.As(err, &verr) {
				t.Errorf("got %v", err)
			}
			got, _ = svc.getByID(ctx, a.ID)
			if got.Zipcode != a.Zipcode {
				t.Errorf("invalid update was persisted: %#v", got)
			}

			var nerr *notFoundError
			if _, err := svc.update(ctx, 404, addressPatch{City: strPtr("x")}); !errors.As(err, &nerr) {
				t.Errorf("got %v", err)
			}
		})
	}
}

func TestAddresses__remove(t *testing.T) {
	ctx := context.Background()
	for name, repo := range testRepositories(t) {
		t.Run(name, func(t *testing.T) {
			svc, owner := newTestAddressService(t, repo)
			a, _ := svc.create(ctx, owner, validAddress())

			ok, err := svc.remove(ctx, a.ID)
			if err != nil || !ok {
				t.Fatalf("ok=%v err=%v", ok, err)
			}
			var nerr *notFoundError
			if _, err := svc.getByID(ctx, a.ID); !errors.As(err, &nerr) {
				t.Errorf("got %v", err)
			}
			if _, err := svc.remove(ctx, a.ID); !errors.As(err, &nerr) {
				t.Errorf("got %v", err)
			}
		})
	}
}

func TestAddresses__searchByCountry(t *testing.T) {
	ctx := context.Background()
	for name, repo := range testRepositories(t) {
		t.Run(name, func(t *testing.T) {
			svc, owner := newTestAddressService(t, repo)

			for _, country := range []string{"Brazil", "Argentina", "", "100%_real", "São Tomé"} {
				cand := validAddress()
				cand.Country = country
				if _, err := svc.create(ctx, owner, cand); err != nil {
					t.Fatal(err)
				}
			}

			var verr *validationError
			for _, blank := range []string{"", "   "} {
				if _, err := svc.searchByCountry(ctx, blank); !errors.As(err, &verr) {
					t.Errorf("fragment=%q got %v", blank, err)
				}
			}

			cases := []struct {
				fragment string
				want     []string
			}{
				{"raz", []string{"Brazil"}},
				{"BRA", []string{"Brazil"}},
				{"a", []string{"Brazil", "Argentina", "100%_real"}},
				{"%", []string{"100%_real"}},
				{"_", []string{"100%_real"}},
				{"SÃO", []string{"São Tomé"}},
				{"TOMÉ", []string{"São Tomé"}},
				{"chile", nil},
			}
			for i := range cases {
				got, err := svc.searchByCountry(ctx, cases[i].fragment)
				if err != nil {
					t.Fatal(err)
				}
				if len(got) != len(cases[i].want) {
					t.Errorf("fragment=%q got %#v", cases[i].fragment, got)
					continue
				}
				for j := range got {
					if got[j].Country != cases[i].want[j] {
						t.Errorf("fragment=%q got %q want %q", cases[i].fragment, got[j].Country, cases[i].want[j])
					}
				}
			}
		})
	}
}

// racingRepository loses an address or its owner between the service's
// lookup and its write.
type racingRepository struct {
	repository
}

func (r racingRepository) insertAddress(_ context.Context, a *Address) error {
	return &notFoundError{kind: "User", id: a.OwnerID}
}

func (r racingRepository) updateAddress(_ context.Context, id int64, _ addressPatch) error {
	return &notFoundError{kind: "Address", id: id}
}

func TestAddresses__storeErrorsKeepTheirStatus(t *testing.T) {
	ctx := context.Background()
	repo := testRepositories(t)["buntdb"]
	svc, owner := newTestAddressService(t, repo)
	a, err := svc.create(ctx, owner, validAddress())
	if err != nil {
		t.Fatal(err)
	}

	racing := &addressService{logger: log.NewNopLogger(), accounts: repo, addresses: racingRepository{repo}}

	_, err = racing.create(ctx, owner, validAddress())
	if got := statusCode(err); got != http.StatusNotFound {
		t.Errorf("create: got %d (%v)", got, err)
	}
	_, err = racing.update(ctx, a.ID, addressPatch{City: strPtr("Campinas")})
	if got := statusCode(err); got != http.StatusNotFound {
		t.Errorf("update: got %d (%v)", got, err)
	}
	if !strings.Contains(err.Error(), fmt.Sprintf("update address %d", a.ID)) {
		t.Errorf("missing context: %v", err)
	}
}
