// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// errUnauthenticated is returned when a protected route is called
	// without a "Bearer <token>" Authorization header.
	errUnauthenticated = errors.New("missing or malformed Authorization header")

	// errInvalidToken is returned when the bearer token is present but
	// fails signature or expiry checks.
	errInvalidToken = errors.New("invalid or expired token")

	// errBadCredentials is the single login failure. Unknown emails and
	// wrong passwords both return it.
	errBadCredentials = errors.New("invalid email or password")

	// errUniqueViolation is returned by repositories when a write would
	// duplicate an account's email or cpf.
	errUniqueViolation = errors.New("unique constraint violated")

	// errReferenced is returned by repositories when a delete would leave
	// rows pointing at the removed record.
	errReferenced = errors.New("record is still referenced")
)

// validationError carries every violation found on a candidate record.
type validationError struct {
	messages []string
}

func newValidationError(messages ...string) *validationError {
	return &validationError{messages: messages}
}

func (e *validationError) Error() string {
	return strings.Join(e.messages, ", ")
}

type conflictError struct {
	msg string
}

func (e *conflictError) Error() string {
	return e.msg
}

type notFoundError struct {
	kind string
	id   int64
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("%s with ID %d not found", e.kind, e.id)
}

// statusCode maps an error onto the HTTP status a route responds with.
// Anything not recognized is an internal fault.
func statusCode(err error) int {
	var (
		verr *validationError
		cerr *conflictError
		nerr *notFoundError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, errUnauthenticated), errors.Is(err, errBadCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, errInvalidToken):
		return http.StatusForbidden
	case errors.As(err, &nerr):
		return http.StatusNotFound
	case errors.As(err, &cerr):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
