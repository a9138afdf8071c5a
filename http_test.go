// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

func TestHTTP__statusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{newValidationError("Name is required."), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", newValidationError("x")), http.StatusBadRequest},
		{errUnauthenticated, http.StatusUnauthorized},
		{errBadCredentials, http.StatusUnauthorized},
		{errInvalidToken, http.StatusForbidden},
		{&notFoundError{kind: "User", id: 1}, http.StatusNotFound},
		{&conflictError{msg: "Email already in use"}, http.StatusConflict},
		{errUniqueViolation, http.StatusInternalServerError},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for i := range cases {
		if got := statusCode(cases[i].err); got != cases[i].want {
			t.Errorf("%v: got %d want %d", cases[i].err, got, cases[i].want)
		}
	}
}

func TestHTTP__encodeError(t *testing.T) {
	logger := log.NewNopLogger()

	w := httptest.NewRecorder()
	encodeError(logger, w, newValidationError("Invalid email format", "Invalid CPF."), "test")
	if w.Code != http.StatusBadRequest {
		t.Errorf("got %d", w.Code)
	}
	var body struct {
		Error  string   `json:"error"`
		Errors []string `json:"errors"`
	}
	decode(t, w, &body)
	if len(body.Errors) != 2 || body.Errors[1] != "Invalid CPF." {
		t.Errorf("got %#v", body)
	}

	w = httptest.NewRecorder()
	encodeError(logger, w, &notFoundError{kind: "Address", id: 7}, "test")
	decode(t, w, &body)
	if w.Code != http.StatusNotFound || body.Error != "Address with ID 7 not found" {
		t.Errorf("got %d %#v", w.Code, body)
	}

	// internal faults never leak their message
	w = httptest.NewRecorder()
	encodeError(logger, w, errors.New("select from accounts: disk I/O error"), "test")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "disk") {
		t.Errorf("leaked: %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	encodeError(logger, w, nil, "test")
	if w.Body.Len() != 0 {
		t.Errorf("nil error wrote %q", w.Body.String())
	}
}

func TestHTTP__pathID(t *testing.T) {
	cases := map[string]bool{
		"1":                    true,
		"42":                   true,
		"0":                    false,
		"-3":                   false,
		"abc":                  false,
		"1.5":                  false,
		"99999999999999999999": false,
	}
	for in, ok := range cases {
		req := mux.SetURLVars(httptest.NewRequest("GET", "/", nil), map[string]string{"id": in})
		id, err := pathID(req, "id")
		if ok && (err != nil || id <= 0) {
			t.Errorf("%q: id=%d err=%v", in, id, err)
		}
		if !ok && statusCode(err) != http.StatusBadRequest {
			t.Errorf("%q: expected validation error, got %v", in, err)
		}
	}
}

func TestHTTP__decodeBody(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}

	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"Ann"}`))
	if err := decodeBody(req, &v); err != nil || v.Name != "Ann" {
		t.Errorf("name=%q err=%v", v.Name, err)
	}

	for _, body := range []string{"", "{", "[1,2]"} {
		req := httptest.NewRequest("POST", "/", bytes.NewReader([]byte(body)))
		if err := decodeBody(req, &v); statusCode(err) != http.StatusBadRequest {
			t.Errorf("%q: got %v", body, err)
		}
	}

	req = httptest.NewRequest("POST", "/", nil)
	req.Body = nil
	if err := decodeBody(req, &v); statusCode(err) != http.StatusBadRequest {
		t.Errorf("nil body: got %v", err)
	}
}
