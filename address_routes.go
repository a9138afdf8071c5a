// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

// addressRequest is the body for creating an address. The owner is
// taken from the route.
type addressRequest struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zipcode string `json:"zipcode"`
	Country string `json:"country"`
}

func addAddressRoutes(router *mux.Router, logger log.Logger, gate *authGate, addresses *addressService) {
	router.Methods("POST").Path("/users/{userId}/addresses").Handler(gate.protect(createAddressRoute(logger, addresses)))
	router.Methods("GET").Path("/users/{userId}/addresses").Handler(gate.protect(listUserAddressesRoute(logger, addresses)))

	router.Methods("GET").Path("/addresses").Handler(gate.protect(listAddressesRoute(logger, addresses)))
	router.Methods("GET").Path("/addresses/{id}").Handler(gate.protect(getAddressRoute(logger, addresses)))
	router.Methods("PUT").Path("/addresses/{id}").Handler(gate.protect(updateAddressRoute(logger, addresses)))
	router.Methods("DELETE").Path("/addresses/{id}").Handler(gate.protect(deleteAddressRoute(logger, addresses)))
}

func createAddressRoute(logger log.Logger, addresses *addressService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := pathID(r, "userId")
		if err != nil {
			encodeError(logger, w, err, "addresses")
			return
		}
		var req addressRequest
		if err := decodeBody(r, &req); err != nil {
			encodeError(logger, w, err, "addresses")
			return
		}
		a, err := addresses.create(r.Context(), userID, addressCandidate{
			Street:  req.Street,
			City:    req.City,
			State:   req.State,
			Zipcode: req.Zipcode,
			Country: req.Country,
		})
		if err != nil {
			encodeError(logger, w, err, "addresses")
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

func listUserAddressesRoute(logger log.Logger, addresses *addressService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := pathID(r, "userId")
		if err != nil {
			encodeError(logger, w, err, "addresses")
			return
		}
		all, err := addresses.listByUser(r.Context(), userID)
		if err != nil {
			encodeError(logger, w, err, "addresses")
			return
		}
		writeJSON(w, http.StatusOK, all)
	}
}

// listAddressesRoute lists every address, or searches by country when
// the "country" query parameter is present.
func listAddressesRoute(logger log.Logger, addresses *addressService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			all []Address
			err error
		)
		if country, ok := r.URL.Query()["country"]; ok {
			all, err = addresses.searchByCountry(r.Context(), country[0])
		} else {
			all, err = addresses.listAll(r.Context())
		}
		if err != nil {
			encodeError(logger, w, err, "addresses")
			return
		}
		writeJSON(w, http.StatusOK, all)
	}
}

func getAddressRoute(logger log.Logger, addresses *addressService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			encodeError(logger, w, err, "addresses")
			return
		}
		a, err := addresses.getByID(r.Context(), id)
		if err != nil {
			encodeError(logger, w, err, "addresses")
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func updateAddressRoute(logger log.Logger, addresses *addressService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			encodeError(logger, w, err, "addresses")
			return
		}
		var patch addressPatch
		if err := decodeBody(r, &patch); err != nil {
			encodeError(logger, w, err, "addresses")
			return
		}
		a, err := addresses.update(r.Context(), id, patch)
		if err != nil {
			encodeError(logger, w, err, "addresses")
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func deleteAddressRoute(logger log.Logger, addresses *addressService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			encodeError(logger, w, err, "addresses")
			return
		}
		ok, err := addresses.remove(r.Context(), id)
		if err != nil {
			encodeError(logger, w, err, "addresses")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": ok})
	}
}
