// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

type signupRequest struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	CPF      string  `json:"cpf"`
	Password *string `json:"password"`
}

func addSignupRoutes(router *mux.Router, logger log.Logger, accounts *accountService) {
	router.Methods("POST").Path("/register").HandlerFunc(signupRoute(logger, accounts))
}

func signupRoute(logger log.Logger, accounts *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var signup signupRequest
		if err := decodeBody(r, &signup); err != nil {
			encodeError(logger, w, err, "signup")
			return
		}

		a, err := accounts.register(r.Context(), userCandidate{
			Name:     signup.Name,
			Email:    signup.Email,
			CPF:      signup.CPF,
			Password: signup.Password,
		})
		if err != nil {
			encodeError(logger, w, err, "signup")
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}
