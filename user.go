// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

func addUserRoutes(router *mux.Router, logger log.Logger, gate *authGate, accounts *accountService) {
	router.Methods("GET").Path("/users").Handler(gate.protect(listUsersRoute(logger, accounts)))
	router.Methods("GET").Path("/users/{id}").Handler(gate.protect(getUserRoute(logger, accounts)))
	router.Methods("PUT").Path("/users/{id}").Handler(gate.protect(updateUserRoute(logger, accounts)))
	router.Methods("DELETE").Path("/users/{id}").Handler(gate.protect(deleteUserRoute(logger, accounts)))
}

func listUsersRoute(logger log.Logger, accounts *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := accounts.listAll(r.Context())
		if err != nil {
			encodeError(logger, w, err, "users")
			return
		}
		writeJSON(w, http.StatusOK, all)
	}
}

func getUserRoute(logger log.Logger, accounts *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			encodeError(logger, w, err, "users")
			return
		}
		a, err := accounts.getByID(r.Context(), id)
		if err != nil {
			encodeError(logger, w, err, "users")
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func updateUserRoute(logger log.Logger, accounts *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			encodeError(logger, w, err, "users")
			return
		}
		var patch userPatch
		if err := decodeBody(r, &patch); err != nil {
			encodeError(logger, w, err, "users")
			return
		}
		a, err := accounts.update(r.Context(), id, patch)
		if err != nil {
			encodeError(logger, w, err, "users")
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func deleteUserRoute(logger log.Logger, accounts *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			encodeError(logger, w, err, "users")
			return
		}
		ok, err := accounts.remove(r.Context(), id)
		if err != nil {
			encodeError(logger, w, err, "users")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": ok})
	}
}
