// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
)

// Address is a postal address owned by exactly one Account.
type Address struct {
	ID        int64     `json:"id"`
	Street    string    `json:"street"`
	City      string    `json:"city"`
	State     string    `json:"state"`
	Zipcode   string    `json:"zipcode"`
	Country   string    `json:"country,omitempty"`
	OwnerID   int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type addressPatch struct {
	Street  *string `json:"street"`
	City    *string `json:"city"`
	State   *string `json:"state"`
	Zipcode *string `json:"zipcode"`
	Country *string `json:"country"`
}

func (p addressPatch) empty() bool {
	return p.Street == nil && p.City == nil && p.State == nil && p.Zipcode == nil && p.Country == nil
}

type addressRepository interface {
	// findAddressByID returns nil (and a nil error) when no address exists.
	findAddressByID(ctx context.Context, id int64) (*Address, error)

	// insertAddress assigns ID and CreatedAt on success.
	insertAddress(ctx context.Context, a *Address) error
	updateAddress(ctx context.Context, id int64, patch addressPatch) error
	deleteAddress(ctx context.Context, id int64) error
	listAddresses(ctx context.Context) ([]Address, error)
	listAddressesByOwner(ctx context.Context, ownerID int64) ([]Address, error)

	// searchAddressesByCountry matches fragment anywhere in the country,
	// ignoring case.
	searchAddressesByCountry(ctx context.Context, fragment string) ([]Address, error)
}

type addressService struct {
	logger log.Logger

	accounts  accountRepository
	addresses addressRepository
}

// create stores an address for userID. The owner always comes from the
// caller (route), any owner sent in the body is ignored.
func (s *addressService) create(ctx context.Context, userID int64, cand addressCandidate) (*Address, error) {
	cand.OwnerID = userID
	if err := validateAddress(cand).err(); err != nil {
		return nil, err
	}
	if err := s.requireOwner(ctx, userID); err != nil {
		return nil, err
	}

	a := &Address{
		Street:  strings.TrimSpace(cand.Street),
		City:    strings.TrimSpace(cand.City),
		State:   strings.TrimSpace(cand.State),
		Zipcode: strings.TrimSpace(cand.Zipcode),
		Country: strings.TrimSpace(cand.Country),
		OwnerID: userID,
	}
	if err := s.addresses.insertAddress(ctx, a); err != nil {
		return nil, fmt.Errorf("create address for user %d: %w", userID, err)
	}
	return a, nil
}

func (s *addressService) listByUser(ctx context.Context, userID int64) ([]Address, error) {
	if err := s.requireOwner(ctx, userID); err != nil {
		return nil, err
	}
	addresses, err := s.addresses.listAddressesByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses for user %d: %w", userID, err)
	}
	return nonNil(addresses), nil
}

func (s *addressService) listAll(ctx context.Context) ([]Address, error) {
	addresses, err := s.addresses.listAddresses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	return nonNil(addresses), nil
}

func (s *addressService) getByID(ctx context.Context, id int64) (*Address, error) {
	a, err := s.addresses.findAddressByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find address %d: %w", id, err)
	}
	if a == nil {
		return nil, &notFoundError{kind: "Address", id: id}
	}
	return a, nil
}

func (s *addressService) update(ctx context.Context, id int64, patch addressPatch) (*Address, error) {
	current, err := s.getByID(ctx, id)
	if err != nil {
		return nil, err
	}

	merged := addressCandidate{
		Street:  current.Street,
		City:    current.City,
		State:   current.State,
		Zipcode: current.Zipcode,
		Country: current.Country,
		OwnerID: current.OwnerID,
	}
	var changes addressPatch
	merge := func(incoming *string, field *string) *string {
		if incoming == nil {
			return nil
		}
		v := strings.TrimSpace(*incoming)
		if v == *field {
			return nil
		}
		*field = v
		return &v
	}
	changes.Street = merge(patch.Street, &merged.Street)
	changes.City = merge(patch.City, &merged.City)
	changes.State = merge(patch.State, &merged.State)
	changes.Zipcode = merge(patch.Zipcode, &merged.Zipcode)
	changes.Country = merge(patch.Country, &merged.Country)

	if err := validateAddress(merged).err(); err != nil {
		return nil, err
	}
	if !changes.empty() {
		if err := s.addresses.updateAddress(ctx, id, changes); err != nil {
			return nil, fmt.Errorf("update address %d: %w", id, err)
		}
	}
	return s.getByID(ctx, id)
}

func (s *addressService) remove(ctx context.Context, id int64) (bool, error) {
	if _, err := s.getByID(ctx, id); err != nil {
		return false, err
	}
	if err := s.addresses.deleteAddress(ctx, id); err != nil {
		return false, fmt.Errorf("remove address %d: %w", id, err)
	}
	return true, nil
}

func (s *addressService) searchByCountry(ctx context.Context, fragment string) ([]Address, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil, newValidationError("Country must be a non-empty string")
	}
	addresses, err := s.addresses.searchAddressesByCountry(ctx, fragment)
	if err != nil {
		return nil, fmt.Errorf("search addresses by country: %w", err)
	}
	return nonNil(addresses), nil
}

func (s *addressService) requireOwner(ctx context.Context, userID int64) error {
	owner, err := s.accounts.findAccountByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("find account %d: %w", userID, err)
	}
	if owner == nil {
		return &notFoundError{kind: "User", id: userID}
	}
	return nil
}

func nonNil(addresses []Address) []Address {
	if addresses == nil {
		return []Address{}
	}
	return addresses
}
