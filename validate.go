// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const minPasswordLength = 6

var (
	cpfPattern = regexp.MustCompile(`^\d{3}\.\d{3}\.\d{3}-\d{2}$`)

	fieldValidator = validator.New()
)

// validationReport is the outcome of checking a candidate record. An
// invalid candidate is a normal result, not an error.
type validationReport struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

func (r validationReport) err() error {
	if r.Valid {
		return nil
	}
	return newValidationError(r.Errors...)
}

func report(errs []string) validationReport {
	return validationReport{
		Valid:  len(errs) == 0,
		Errors: errs,
	}
}

// userCandidate is an account as submitted for creation or as merged
// for update. Password is nil when the caller didn't send one.
type userCandidate struct {
	Name     string
	Email    string
	CPF      string
	Password *string
}

// validateUser checks every rule and collects every violation.
func validateUser(u userCandidate) validationReport {
	var errs []string
	if err := checkEmail(u.Email); err != nil {
		errs = append(errs, "Invalid email format")
	}
	if u.Password != nil {
		if err := checkPassword(*u.Password); err != nil {
			errs = append(errs, "Password must be at least 6 characters long")
		}
	}
	if blank(u.Name) {
		errs = append(errs, "Name is required.")
	}
	if !validCPF(u.CPF) {
		errs = append(errs, "Invalid CPF.")
	}
	return report(errs)
}

// addressCandidate is an address as submitted or as merged for update.
type addressCandidate struct {
	Street  string
	City    string
	State   string
	Zipcode string
	Country string
	OwnerID int64
}

func validateAddress(a addressCandidate) validationReport {
	var errs []string
	if blank(a.Street) {
		errs = append(errs, "Street is required.")
	}
	if blank(a.City) {
		errs = append(errs, "City is required.")
	}
	if blank(a.State) {
		errs = append(errs, "State is required.")
	}
	if blank(a.Zipcode) {
		errs = append(errs, "Zipcode is required.")
	}
	if a.OwnerID <= 0 {
		errs = append(errs, "User ID is required.")
	}
	return report(errs)
}

func checkEmail(email string) error {
	return fieldValidator.Var(email, "required,email")
}

func checkPassword(pass string) error {
	if utf8.RuneCountInString(pass) < minPasswordLength {
		return newValidationError("Password must be at least 6 characters long")
	}
	return nil
}

func validCPF(cpf string) bool {
	return cpf != "" && cpfPattern.MatchString(cpf)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
