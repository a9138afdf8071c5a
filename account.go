// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/moov-io/accounts/pkg/password"
	"github.com/moov-io/accounts/pkg/token"

	"github.com/go-kit/kit/log"
)

// Account is a registered user. PasswordHash never leaves the process.
type Account struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	CPF          string    `json:"cpf"`
	PasswordHash string    `json:"-"`
	Addresses    []Address `json:"addresses,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// accountPatch lists the columns an update writes. Nil fields are left
// untouched.
type accountPatch struct {
	Name         *string
	Email        *string
	CPF          *string
	PasswordHash *string
}

func (p accountPatch) empty() bool {
	return p.Name == nil && p.Email == nil && p.CPF == nil && p.PasswordHash == nil
}

type accountRepository interface {
	// findAccountByID returns nil (and a nil error) when no account exists.
	findAccountByID(ctx context.Context, id int64) (*Account, error)

	// findAccountByEmail expects an email already passed through
	// normalizeEmail.
	findAccountByEmail(ctx context.Context, email string) (*Account, error)
	findAccountByCPF(ctx context.Context, cpf string) (*Account, error)

	// insertAccount assigns ID and CreatedAt on success. It returns
	// errUniqueViolation if the email or cpf is taken.
	insertAccount(ctx context.Context, a *Account) error
	updateAccount(ctx context.Context, id int64, patch accountPatch) error

	// deleteAccount returns errReferenced while addresses still point
	// at the account.
	deleteAccount(ctx context.Context, id int64) error
	listAccounts(ctx context.Context) ([]Account, error)
}

// normalizeEmail trims and lowercases an email so lookups and the
// uniqueness check agree.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// userPatch is a partial account update. Nil fields are kept.
type userPatch struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	CPF      *string `json:"cpf"`
	Password *string `json:"password"`
}

type accountService struct {
	logger log.Logger

	accounts  accountRepository
	addresses addressRepository

	hasher *password.Hasher
	issuer *token.Issuer

	// dummyHash is compared against on logins for unknown emails so both
	// failure paths cost one bcrypt comparison.
	dummyHash string
}

func newAccountService(logger log.Logger, accounts accountRepository, addresses addressRepository, hasher *password.Hasher, issuer *token.Issuer) (*accountService, error) {
	dummy, err := hasher.Hash("no-such-account")
	if err != nil {
		return nil, fmt.Errorf("problem creating dummy hash: %w", err)
	}
	return &accountService{
		logger:    logger,
		accounts:  accounts,
		addresses: addresses,
		hasher:    hasher,
		issuer:    issuer,
		dummyHash: dummy,
	}, nil
}

func (s *accountService) register(ctx context.Context, cand userCandidate) (*Account, error) {
	cand.Email = normalizeEmail(cand.Email)
	if cand.Password == nil {
		empty := ""
		cand.Password = &empty
	}
	if err := validateUser(cand).err(); err != nil {
		return nil, err
	}

	existing, err := s.accounts.findAccountByEmail(ctx, cand.Email)
	if err != nil {
		return nil, fmt.Errorf("register: email lookup: %w", err)
	}
	if existing != nil {
		return nil, &conflictError{"Email already in use"}
	}
	existing, err = s.accounts.findAccountByCPF(ctx, cand.CPF)
	if err != nil {
		return nil, fmt.Errorf("register: cpf lookup: %w", err)
	}
	if existing != nil {
		return nil, &conflictError{"CPF already in use"}
	}

	hashed, err := s.hashPassword(*cand.Password)
	if err != nil {
		return nil, err
	}

	a := &Account{
		Name:         strings.TrimSpace(cand.Name),
		Email:        cand.Email,
		CPF:          cand.CPF,
		PasswordHash: hashed,
	}
	if err := s.accounts.insertAccount(ctx, a); err != nil {
		if errors.Is(err, errUniqueViolation) {
			return nil, &conflictError{"Email or CPF already in use"}
		}
		return nil, fmt.Errorf("register: insert: %w", err)
	}
	accountsRegistered.Add(1)
	s.logger.Log("accounts", fmt.Sprintf("registered accountId=%d", a.ID))
	return a, nil
}

// login checks email and password and returns a freshly issued token.
func (s *accountService) login(ctx context.Context, email, pass string) (string, *Account, error) {
	a, err := s.accounts.findAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", nil, fmt.Errorf("login: email lookup: %w", err)
	}
	if a == nil {
		s.hasher.Verify(pass, s.dummyHash)
		return "", nil, errBadCredentials
	}
	if !s.hasher.Verify(pass, a.PasswordHash) {
		return "", nil, errBadCredentials
	}

	tok, err := s.issuer.Issue(a.ID, a.Name)
	if err != nil {
		return "", nil, fmt.Errorf("login: accountId=%d: %w", a.ID, err)
	}
	return tok, a, nil
}

// getByID returns the account along with the addresses it owns.
func (s *accountService) getByID(ctx context.Context, id int64) (*Account, error) {
	a, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Addresses, err = s.addresses.listAddressesByOwner(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get account %d: addresses: %w", id, err)
	}
	return a, nil
}

func (s *accountService) listAll(ctx context.Context) ([]Account, error) {
	accounts, err := s.accounts.listAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	if accounts == nil {
		accounts = []Account{}
	}
	return accounts, nil
}

func (s *accountService) update(ctx context.Context, id int64, patch userPatch) (*Account, error) {
	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	merged := userCandidate{
		Name:     current.Name,
		Email:    current.Email,
		CPF:      current.CPF,
		Password: patch.Password,
	}
	if patch.Name != nil {
		merged.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Email != nil {
		merged.Email = normalizeEmail(*patch.Email)
	}
	if patch.CPF != nil {
		merged.CPF = *patch.CPF
	}
	if err := validateUser(merged).err(); err != nil {
		return nil, err
	}

	var changes accountPatch
	if merged.Name != current.Name {
		changes.Name = &merged.Name
	}
	if merged.Email != current.Email {
		other, err := s.accounts.findAccountByEmail(ctx, merged.Email)
		if err != nil {
			return nil, fmt.Errorf("update account %d: email lookup: %w", id, err)
		}
		if other != nil && other.ID != id {
			return nil, &conflictError{"Email already in use"}
		}
		changes.Email = &merged.Email
	}
	if merged.CPF != current.CPF {
		other, err := s.accounts.findAccountByCPF(ctx, merged.CPF)
		if err != nil {
			return nil, fmt.Errorf("update account %d: cpf lookup: %w", id, err)
		}
		if other != nil && other.ID != id {
			return nil, &conflictError{"CPF already in use"}
		}
		changes.CPF = &merged.CPF
	}
	if merged.Password != nil {
		hashed, err := s.hashPassword(*merged.Password)
		if err != nil {
			return nil, err
		}
		changes.PasswordHash = &hashed
	}

	if !changes.empty() {
		if err := s.accounts.updateAccount(ctx, id, changes); err != nil {
			if errors.Is(err, errUniqueViolation) {
				return nil, &conflictError{"Email or CPF already in use"}
			}
			return nil, fmt.Errorf("update account %d: %w", id, err)
		}
	}
	return s.getByID(ctx, id)
}

// remove deletes an account. Accounts which still own addresses are not
// removed; their addresses have to be deleted first.
func (s *accountService) remove(ctx context.Context, id int64) (bool, error) {
	if _, err := s.find(ctx, id); err != nil {
		return false, err
	}
	owned, err := s.addresses.listAddressesByOwner(ctx, id)
	if err != nil {
		return false, fmt.Errorf("remove account %d: addresses: %w", id, err)
	}
	if len(owned) > 0 {
		return false, &conflictError{fmt.Sprintf("User with ID %d still has %d address(es)", id, len(owned))}
	}
	if err := s.accounts.deleteAccount(ctx, id); err != nil {
		if errors.Is(err, errReferenced) {
			return false, &conflictError{fmt.Sprintf("User with ID %d still has addresses", id)}
		}
		return false, fmt.Errorf("remove account %d: %w", id, err)
	}
	s.logger.Log("accounts", fmt.Sprintf("removed accountId=%d", id))
	return true, nil
}

func (s *accountService) find(ctx context.Context, id int64) (*Account, error) {
	a, err := s.accounts.findAccountByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find account %d: %w", id, err)
	}
	if a == nil {
		return nil, &notFoundError{kind: "User", id: id}
	}
	return a, nil
}

func (s *accountService) hashPassword(plaintext string) (string, error) {
	hashed, err := s.hasher.Hash(plaintext)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return "", newValidationError("Password must be at most 72 bytes long")
		}
		return "", err
	}
	return hashed, nil
}
