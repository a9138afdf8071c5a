// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func addLoginRoutes(router *mux.Router, logger log.Logger, accounts *accountService) {
	router.Methods("POST").Path("/login").HandlerFunc(loginRoute(logger, accounts))
}

func loginRoute(logger log.Logger, accounts *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var login loginRequest
		if err := decodeBody(r, &login); err != nil {
			encodeError(logger, w, err, "login")
			return
		}

		tok, a, err := accounts.login(r.Context(), login.Email, login.Password)
		if err != nil {
			if errors.Is(err, errBadCredentials) {
				// Mark this as failure only because the user is involved
				// at this point. Otherwise it's their developer's problem
				// (i.e. bad json).
				authFailures.With("method", "web").Add(1)
			}
			encodeError(logger, w, err, "login")
			return
		}

		// success route, let's finish!
		authSuccesses.With("method", "web").Add(1)
		tokenGenerations.With("method", "web").Add(1)
		logger.Log("login", fmt.Sprintf("issued token for accountId=%d", a.ID))

		writeJSON(w, http.StatusOK, loginResponse{Token: tok})
	}
}
