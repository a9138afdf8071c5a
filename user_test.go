// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"net/http"
	"testing"
)

func TestUser__routes(t *testing.T) {
	for name, repo := range testRepositories(t) {
		t.Run(name, func(t *testing.T) {
			srv := newTestServer(t, repo)

			w := srv.do(t, "POST", "/register", "", map[string]string{
				"name": "Ann", "email": "ann@x.com", "cpf": "123.456.789-00", "password": "secret1",
			})
			var ann Account
			decode(t, w, &ann)
			tok, _ := srv.issuer.Issue(ann.ID, ann.Name)

			w = srv.do(t, "GET", "/users/1", tok, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("get: got %d", w.Code)
			}

			w = srv.do(t, "GET", "/users/2", tok, nil)
			if w.Code != http.StatusNotFound {
				t.Errorf("get missing: got %d", w.Code)
			}
			w = srv.do(t, "GET", "/users/abc", tok, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("get bad id: got %d", w.Code)
			}

			w = srv.do(t, "PUT", "/users/1", tok, map[string]string{"name": "Ann Lee"})
			var updated Account
			decode(t, w, &updated)
			if w.Code != http.StatusOK || updated.Name != "Ann Lee" || updated.CPF != "123.456.789-00" {
				t.Errorf("update: got %d %#v", w.Code, updated)
			}

			w = srv.do(t, "PUT", "/users/1", tok, map[string]string{"email": "broken"})
			if w.Code != http.StatusBadRequest {
				t.Errorf("invalid update: got %d", w.Code)
			}
			w = srv.do(t, "PUT", "/users/2", tok, map[string]string{"name": "x"})
			if w.Code != http.StatusNotFound {
				t.Errorf("update missing: got %d", w.Code)
			}

			w = srv.do(t, "DELETE", "/users/1", tok, nil)
			var res map[string]bool
			decode(t, w, &res)
			if w.Code != http.StatusOK || !res["success"] {
				t.Errorf("delete: got %d %v", w.Code, res)
			}
			w = srv.do(t, "DELETE", "/users/1", tok, nil)
			if w.Code != http.StatusNotFound {
				t.Errorf("delete again: got %d", w.Code)
			}
		})
	}
}

func TestUser__routesRequireToken(t *testing.T) {
	srv := newTestServer(t, testRepositories(t)["buntdb"])

	routes := []struct{ method, path string }{
		{"GET", "/users"},
		{"GET", "/users/1"},
		{"PUT", "/users/1"},
		{"DELETE", "/users/1"},
		{"POST", "/users/1/addresses"},
		{"GET", "/users/1/addresses"},
		{"GET", "/addresses"},
		{"GET", "/addresses/1"},
		{"PUT", "/addresses/1"},
		{"DELETE", "/addresses/1"},
		{"GET", "/authorize"},
	}
	for i := range routes {
		w := srv.do(t, routes[i].method, routes[i].path, "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: got %d", routes[i].method, routes[i].path, w.Code)
		}
		w = srv.do(t, routes[i].method, routes[i].path, "not-a-token", nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("%s %s: got %d", routes[i].method, routes[i].path, w.Code)
		}
	}
}
