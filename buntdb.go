// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/tidwall/buntdb"
)

// buntdbRepository implements accountRepository and addressRepository
// on BuntDB (https://github.com/tidwall/buntdb).
//
// Keys:
//
//	account:<id>           JSON account (including password hash)
//	account_email:<email>  owning account id
//	account_cpf:<cpf>      owning account id
//	address:<id>           JSON address
//	seq:<kind>             last id handed out
//
// Ids are zero padded so key order matches id order. Every write runs in
// a single buntdb.Update transaction, which holds the database's write
// lock, so the email/cpf reservations can't race.
type buntdbRepository struct {
	db     *buntdb.DB
	logger log.Logger
}

// openBuntDB opens path, use ":memory:" for a non-persistent database.
func openBuntDB(logger log.Logger, path string) (*buntdbRepository, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("problem opening buntdb %s: %v", path, err)
	}
	logger.Log("buntdb", fmt.Sprintf("opened %s", path))
	return &buntdbRepository{db: db, logger: logger}, nil
}

func (r *buntdbRepository) Close() error {
	return r.db.Close()
}

type buntAccount struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	CPF          string    `json:"cpf"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

func (b buntAccount) account() *Account {
	return &Account{
		ID:           b.ID,
		Name:         b.Name,
		Email:        b.Email,
		CPF:          b.CPF,
		PasswordHash: b.PasswordHash,
		CreatedAt:    b.CreatedAt,
	}
}

func accountKey(id int64) string      { return fmt.Sprintf("account:%019d", id) }
func accountEmailKey(e string) string { return "account_email:" + e }
func accountCPFKey(c string) string   { return "account_cpf:" + c }
func addressKey(id int64) string      { return fmt.Sprintf("address:%019d", id) }

// nextID increments and returns the sequence for kind.
func nextID(tx *buntdb.Tx, kind string) (int64, error) {
	key := "seq:" + kind
	var n int64
	v, err := tx.Get(key)
	switch {
	case err == nil:
		n, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt sequence %s: %v", key, err)
		}
	case errors.Is(err, buntdb.ErrNotFound):
	default:
		return 0, err
	}
	n++
	if _, _, err := tx.Set(key, strconv.FormatInt(n, 10), nil); err != nil {
		return 0, err
	}
	return n, nil
}

// getJSON reads key into v, reporting false if the key doesn't exist.
func getJSON(tx *buntdb.Tx, key string, v interface{}) (bool, error) {
	raw, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, buntdb.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("problem decoding %s: %v", key, err)
	}
	return true, nil
}

func setJSON(tx *buntdb.Tx, key string, v interface{}) error {
	bs, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, _, err = tx.Set(key, string(bs), nil)
	return err
}

// reserve claims key for id, failing with errUniqueViolation if another
// account holds it.
func reserve(tx *buntdb.Tx, key string, id int64) error {
	v, err := tx.Get(key)
	switch {
	case err == nil:
		if v != strconv.FormatInt(id, 10) {
			return errUniqueViolation
		}
		return nil
	case errors.Is(err, buntdb.ErrNotFound):
		_, _, err = tx.Set(key, strconv.FormatInt(id, 10), nil)
		return err
	}
	return err
}

// Accounts

func (r *buntdbRepository) findAccountByID(_ context.Context, id int64) (*Account, error) {
	var out *Account
	err := r.db.View(func(tx *buntdb.Tx) error {
		var b buntAccount
		found, err := getJSON(tx, accountKey(id), &b)
		if found {
			out = b.account()
		}
		return err
	})
	return out, err
}

func (r *buntdbRepository) findAccountByIndex(key string) (*Account, error) {
	var out *Account
	err := r.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		if err != nil {
			if errors.Is(err, buntdb.ErrNotFound) {
				return nil
			}
			return err
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("corrupt index %s: %v", key, err)
		}
		var b buntAccount
		found, err := getJSON(tx, accountKey(id), &b)
		if found {
			out = b.account()
		}
		return err
	})
	return out, err
}

func (r *buntdbRepository) findAccountByEmail(_ context.Context, email string) (*Account, error) {
	return r.findAccountByIndex(accountEmailKey(email))
}

func (r *buntdbRepository) findAccountByCPF(_ context.Context, cpf string) (*Account, error) {
	return r.findAccountByIndex(accountCPFKey(cpf))
}

func (r *buntdbRepository) insertAccount(_ context.Context, a *Account) error {
	return r.db.Update(func(tx *buntdb.Tx) error {
		id, err := nextID(tx, "account")
		if err != nil {
			return err
		}
		if err := reserve(tx, accountEmailKey(a.Email), id); err != nil {
			return err
		}
		if err := reserve(tx, accountCPFKey(a.CPF), id); err != nil {
			return err
		}
		b := buntAccount{
			ID:           id,
			Name:         a.Name,
			Email:        a.Email,
			CPF:          a.CPF,
			PasswordHash: a.PasswordHash,
			CreatedAt:    time.Now().UTC(),
		}
		if err := setJSON(tx, accountKey(id), b); err != nil {
			return err
		}
		// a failed Update rolls back, so only copy out once everything succeeded
		a.ID, a.CreatedAt = b.ID, b.CreatedAt
		return nil
	})
}

func (r *buntdbRepository) updateAccount(_ context.Context, id int64, patch accountPatch) error {
	return r.db.Update(func(tx *buntdb.Tx) error {
		var b buntAccount
		found, err := getJSON(tx, accountKey(id), &b)
		if err != nil {
			return err
		}
		if !found {
			return &notFoundError{kind: "User", id: id}
		}
		if patch.Email != nil && *patch.Email != b.Email {
			if err := reserve(tx, accountEmailKey(*patch.Email), id); err != nil {
				return err
			}
			if _, err := tx.Delete(accountEmailKey(b.Email)); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
			b.Email = *patch.Email
		}
		if patch.CPF != nil && *patch.CPF != b.CPF {
			if err := reserve(tx, accountCPFKey(*patch.CPF), id); err != nil {
				return err
			}
			if _, err := tx.Delete(accountCPFKey(b.CPF)); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
			b.CPF = *patch.CPF
		}
		if patch.Name != nil {
			b.Name = *patch.Name
		}
		if patch.PasswordHash != nil {
			b.PasswordHash = *patch.PasswordHash
		}
		return setJSON(tx, accountKey(id), b)
	})
}

func (r *buntdbRepository) deleteAccount(_ context.Context, id int64) error {
	return r.db.Update(func(tx *buntdb.Tx) error {
		var b buntAccount
		found, err := getJSON(tx, accountKey(id), &b)
		if err != nil || !found {
			return err
		}
		owned, err := scanAddresses(tx, func(a Address) bool { return a.OwnerID == id })
		if err != nil {
			return err
		}
		if len(owned) > 0 {
			return errReferenced
		}
		for _, key := range []string{accountKey(id), accountEmailKey(b.Email), accountCPFKey(b.CPF)} {
			if _, err := tx.Delete(key); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
		}
		return nil
	})
}

func (r *buntdbRepository) listAccounts(_ context.Context) ([]Account, error) {
	var out []Account
	err := r.db.View(func(tx *buntdb.Tx) error {
		var decodeErr error
		err := tx.AscendKeys("account:*", func(key, value string) bool {
			var b buntAccount
			if decodeErr = json.Unmarshal([]byte(value), &b); decodeErr != nil {
				decodeErr = fmt.Errorf("problem decoding %s: %v", key, decodeErr)
				return false
			}
			out = append(out, *b.account())
			return true
		})
		if err != nil {
			return err
		}
		return decodeErr
	})
	return out, err
}

// Addresses

// scanAddresses returns every address keep accepts, ordered by id.
func scanAddresses(tx *buntdb.Tx, keep func(Address) bool) ([]Address, error) {
	var out []Address
	var decodeErr error
	err := tx.AscendKeys("address:*", func(key, value string) bool {
		var a Address
		if decodeErr = json.Unmarshal([]byte(value), &a); decodeErr != nil {
			decodeErr = fmt.Errorf("problem decoding %s: %v", key, decodeErr)
			return false
		}
		if keep(a) {
			out = append(out, a)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *buntdbRepository) viewAddresses(keep func(Address) bool) ([]Address, error) {
	var out []Address
	err := r.db.View(func(tx *buntdb.Tx) error {
		var err error
		out, err = scanAddresses(tx, keep)
		return err
	})
	return out, err
}

func (r *buntdbRepository) findAddressByID(_ context.Context, id int64) (*Address, error) {
	var out *Address
	err := r.db.View(func(tx *buntdb.Tx) error {
		var a Address
		found, err := getJSON(tx, addressKey(id), &a)
		if found {
			out = &a
		}
		return err
	})
	return out, err
}

func (r *buntdbRepository) insertAddress(_ context.Context, a *Address) error {
	return r.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(accountKey(a.OwnerID)); err != nil {
			if errors.Is(err, buntdb.ErrNotFound) {
				return &notFoundError{kind: "User", id: a.OwnerID}
			}
			return err
		}
		id, err := nextID(tx, "address")
		if err != nil {
			return err
		}
		stored := *a
		stored.ID, stored.CreatedAt = id, time.Now().UTC()
		if err := setJSON(tx, addressKey(id), stored); err != nil {
			return err
		}
		a.ID, a.CreatedAt = stored.ID, stored.CreatedAt
		return nil
	})
}

func (r *buntdbRepository) updateAddress(_ context.Context, id int64, patch addressPatch) error {
	return r.db.Update(func(tx *buntdb.Tx) error {
		var a Address
		found, err := getJSON(tx, addressKey(id), &a)
		if err != nil {
			return err
		}
		if !found {
			return &notFoundError{kind: "Address", id: id}
		}
		apply := func(dst *string, v *string) {
			if v != nil {
				*dst = *v
			}
		}
		apply(&a.Street, patch.Street)
		apply(&a.City, patch.City)
		apply(&a.State, patch.State)
		apply(&a.Zipcode, patch.Zipcode)
		apply(&a.Country, patch.Country)
		return setJSON(tx, addressKey(id), a)
	})
}

func (r *buntdbRepository) deleteAddress(_ context.Context, id int64) error {
	return r.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(addressKey(id))
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		return err
	})
}

func (r *buntdbRepository) listAddresses(_ context.Context) ([]Address, error) {
	return r.viewAddresses(func(Address) bool { return true })
}

func (r *buntdbRepository) listAddressesByOwner(_ context.Context, ownerID int64) ([]Address, error) {
	return r.viewAddresses(func(a Address) bool { return a.OwnerID == ownerID })
}

func (r *buntdbRepository) searchAddressesByCountry(_ context.Context, fragment string) ([]Address, error) {
	fragment = strings.ToLower(fragment)
	return r.viewAddresses(func(a Address) bool {
		return strings.Contains(strings.ToLower(a.Country), fragment)
	})
}
