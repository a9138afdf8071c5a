// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/go-kit/kit/log"
	kitprom "github.com/go-kit/kit/metrics/prometheus"
	stdprom "github.com/prometheus/client_golang/prometheus"
)

var (
	// migrations holds all our SQL migrations to be done (in order)
	migrations = []string{
		`create table if not exists accounts(account_id integer primary key autoincrement, name text not null, email text not null, cpf text not null, password_hash text not null, created_at timestamp not null);`,
		`create unique index if not exists accounts_email_idx on accounts(email);`,
		`create unique index if not exists accounts_cpf_idx on accounts(cpf);`,

		// addresses.account_id has no "on delete" action, removing an
		// account which still owns addresses fails.
		`create table if not exists addresses(address_id integer primary key autoincrement, account_id integer not null references accounts(account_id), street text not null, city text not null, state text not null, zipcode text not null, country text not null default '', created_at timestamp not null);`,
		`create index if not exists addresses_account_id_idx on addresses(account_id);`,
	}

	// sqliteDriver is go-sqlite3 with lower_unicode registered on every
	// connection. sqlite's own lower() and LIKE only fold ASCII.
	sqliteDriver = "sqlite3_accounts"

	// Metrics
	connections = kitprom.NewGaugeFrom(stdprom.GaugeOpts{
		Name: "sqlite_connections",
		Help: "How many sqlite connections and what status they're in.",
	}, []string{"state"})
)

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("lower_unicode", strings.ToLower, true)
		},
	})
}

type promMetricCollector struct {
	interval time.Duration
}

func (p promMetricCollector) run(db *sql.DB, stop <-chan struct{}) {
	if db == nil {
		return
	}
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		stats := db.Stats()
		connections.With("state", "idle").Set(float64(stats.Idle))
		connections.With("state", "inuse").Set(float64(stats.InUse))
		connections.With("state", "open").Set(float64(stats.OpenConnections))

		select {
		case <-t.C:
		case <-stop:
			return
		}
	}
}

func getSqlitePath(path string) string {
	if path == "" || strings.Contains(path, "..") {
		// set default if empty or trying to escape
		// don't filepath.ABS to avoid full-fs reads
		path = "accounts.db"
	}
	return path
}

// sqliteRepository implements accountRepository and addressRepository
// over database/sql.
type sqliteRepository struct {
	db     *sql.DB
	logger log.Logger
	stop   chan struct{}
}

// openSqlite opens (or creates) the database at path and runs our
// migrations (defined at the top of this file) over it.
//
// https://github.com/mattn/go-sqlite3/blob/master/_example/simple/simple.go
func openSqlite(logger log.Logger, path string) (*sqliteRepository, error) {
	path = getSqlitePath(path)
	db, err := sql.Open(sqliteDriver, path+"?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		err = fmt.Errorf("problem opening sqlite3 file: %v", err)
		logger.Log("sqlite", err)
		return nil, err
	}
	// sqlite allows a single writer, serialize access through one connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("problem connecting to sqlite3 file %s: %v", path, err)
	}

	logger.Log("sqlite", fmt.Sprintf("migrating %s", path))
	for i := range migrations {
		row := migrations[i]
		res, err := db.Exec(row)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("migration #%d [%s...] had problem: %v", i, row[:40], err)
		}
		n, err := res.RowsAffected()
		if err == nil {
			logger.Log("sqlite", fmt.Sprintf("migration #%d [%s...] changed %d rows", i, row[:40], n))
		}
	}
	logger.Log("sqlite", "finished migrations")

	repo := &sqliteRepository{
		db:     db,
		logger: logger,
		stop:   make(chan struct{}),
	}
	go promMetricCollector{interval: 10 * time.Second}.run(db, repo.stop)
	return repo, nil
}

func (r *sqliteRepository) Close() error {
	close(r.stop)
	return r.db.Close()
}

func sqliteConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == code
	}
	return false
}

// patchSet builds the "col = ?" list for an update, skipping nil values.
type patchSet struct {
	cols []string
	args []interface{}
}

func (p *patchSet) add(col string, v *string) {
	if v == nil {
		return
	}
	p.cols = append(p.cols, col+" = ?")
	p.args = append(p.args, *v)
}

func (p *patchSet) clause() string {
	return strings.Join(p.cols, ", ")
}

// escapeLike escapes the LIKE wildcards in s with a backslash.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Accounts

const accountColumns = `account_id, name, email, cpf, password_hash, created_at`

func scanAccount(row interface{ Scan(...interface{}) error }) (*Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.CPF, &a.PasswordHash, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *sqliteRepository) findAccount(ctx context.Context, where string, arg interface{}) (*Account, error) {
	row := r.db.QueryRowContext(ctx, `select `+accountColumns+` from accounts where `+where+` limit 1;`, arg)
	a, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (r *sqliteRepository) findAccountByID(ctx context.Context, id int64) (*Account, error) {
	return r.findAccount(ctx, "account_id = ?", id)
}

func (r *sqliteRepository) findAccountByEmail(ctx context.Context, email string) (*Account, error) {
	return r.findAccount(ctx, "email = ?", email)
}

func (r *sqliteRepository) findAccountByCPF(ctx context.Context, cpf string) (*Account, error) {
	return r.findAccount(ctx, "cpf = ?", cpf)
}

func (r *sqliteRepository) insertAccount(ctx context.Context, a *Account) error {
	createdAt := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`insert into accounts (name, email, cpf, password_hash, created_at) values (?, ?, ?, ?, ?);`,
		a.Name, a.Email, a.CPF, a.PasswordHash, createdAt,
	)
	if err != nil {
		if sqliteConstraint(err, sqlite3.ErrConstraintUnique) {
			return errUniqueViolation
		}
		return fmt.Errorf("insert account: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert account: %v", err)
	}
	a.ID, a.CreatedAt = id, createdAt
	return nil
}

func (r *sqliteRepository) updateAccount(ctx context.Context, id int64, patch accountPatch) error {
	var set patchSet
	set.add("name", patch.Name)
	set.add("email", patch.Email)
	set.add("cpf", patch.CPF)
	set.add("password_hash", patch.PasswordHash)
	if len(set.cols) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `update accounts set `+set.clause()+` where account_id = ?;`, append(set.args, id)...)
	if err != nil {
		if sqliteConstraint(err, sqlite3.ErrConstraintUnique) {
			return errUniqueViolation
		}
		return fmt.Errorf("update account %d: %v", id, err)
	}
	return nil
}

func (r *sqliteRepository) deleteAccount(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `delete from accounts where account_id = ?;`, id)
	if err != nil {
		if sqliteConstraint(err, sqlite3.ErrConstraintForeignKey) {
			return errReferenced
		}
		return fmt.Errorf("delete account %d: %v", id, err)
	}
	return nil
}

func (r *sqliteRepository) listAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx, `select `+accountColumns+` from accounts order by account_id;`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %v", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("list accounts: scan: %v", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Addresses

const addressColumns = `address_id, account_id, street, city, state, zipcode, country, created_at`

func scanAddress(row interface{ Scan(...interface{}) error }) (*Address, error) {
	var a Address
	if err := row.Scan(&a.ID, &a.OwnerID, &a.Street, &a.City, &a.State, &a.Zipcode, &a.Country, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *sqliteRepository) queryAddresses(ctx context.Context, where string, args ...interface{}) ([]Address, error) {
	query := `select ` + addressColumns + ` from addresses`
	if where != "" {
		query += ` where ` + where
	}
	rows, err := r.db.QueryContext(ctx, query+` order by address_id;`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Address
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan address: %v", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *sqliteRepository) findAddressByID(ctx context.Context, id int64) (*Address, error) {
	row := r.db.QueryRowContext(ctx, `select `+addressColumns+` from addresses where address_id = ? limit 1;`, id)
	a, err := scanAddress(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (r *sqliteRepository) insertAddress(ctx context.Context, a *Address) error {
	createdAt := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`insert into addresses (account_id, street, city, state, zipcode, country, created_at) values (?, ?, ?, ?, ?, ?, ?);`,
		a.OwnerID, a.Street, a.City, a.State, a.Zipcode, a.Country, createdAt,
	)
	if err != nil {
		if sqliteConstraint(err, sqlite3.ErrConstraintForeignKey) {
			return &notFoundError{kind: "User", id: a.OwnerID}
		}
		return fmt.Errorf("insert address: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert address: %v", err)
	}
	a.ID, a.CreatedAt = id, createdAt
	return nil
}

func (r *sqliteRepository) updateAddress(ctx context.Context, id int64, patch addressPatch) error {
	var set patchSet
	set.add("street", patch.Street)
	set.add("city", patch.City)
	set.add("state", patch.State)
	set.add("zipcode", patch.Zipcode)
	set.add("country", patch.Country)
	if len(set.cols) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `update addresses set `+set.clause()+` where address_id = ?;`, append(set.args, id)...)
	if err != nil {
		return fmt.Errorf("update address %d: %v", id, err)
	}
	return nil
}

func (r *sqliteRepository) deleteAddress(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `delete from addresses where address_id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete address %d: %v", id, err)
	}
	return nil
}

func (r *sqliteRepository) listAddresses(ctx context.Context) ([]Address, error) {
	return r.queryAddresses(ctx, "")
}

func (r *sqliteRepository) listAddressesByOwner(ctx context.Context, ownerID int64) ([]Address, error) {
	return r.queryAddresses(ctx, "account_id = ?", ownerID)
}

// searchAddressesByCountry lowercases both sides with Go's Unicode case
// mapping so "SÃO" matches "São Tomé" the same as in buntdb.
func (r *sqliteRepository) searchAddressesByCountry(ctx context.Context, fragment string) ([]Address, error) {
	pattern := "%" + escapeLike(strings.ToLower(fragment)) + "%"
	return r.queryAddresses(ctx, `lower_unicode(country) like ? escape '\'`, pattern)
}
