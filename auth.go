// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/moov-io/accounts/pkg/token"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

type identityKey struct{}

// authGate decides whether a request's Authorization header admits it.
type authGate struct {
	logger   log.Logger
	verifier *token.Verifier
}

// authorize checks a raw Authorization header value. A missing or
// malformed header is errUnauthenticated and the token is never looked
// at. A "Bearer" token which fails verification is errInvalidToken.
func (g *authGate) authorize(header string) (token.Identity, error) {
	scheme, raw, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return token.Identity{}, errUnauthenticated
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return token.Identity{}, errUnauthenticated
	}

	id, err := g.verifier.Verify(raw)
	if err != nil {
		// never log the token itself
		g.logger.Log("auth", fmt.Sprintf("rejected bearer token: %v", err))
		return token.Identity{}, errInvalidToken
	}
	return id, nil
}

// protect wraps next so it only runs for requests authorize admits. On
// rejection the response is written here and next is never called.
func (g *authGate) protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := g.authorize(r.Header.Get("Authorization"))
		if err != nil {
			authFailures.With("method", "bearer").Add(1)
			encodeError(g.logger, w, err, "auth")
			return
		}
		authSuccesses.With("method", "bearer").Add(1)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

// identityFrom returns the identity protect stored on the request.
func identityFrom(ctx context.Context) (token.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(token.Identity)
	return id, ok
}

func addAuthRoutes(router *mux.Router, gate *authGate) {
	router.Methods("GET").Path("/authorize").Handler(gate.protect(http.HandlerFunc(authorizeHandler)))
}

// authorizeHandler returns "200 OK" and the token's identity when the
// bearer token is valid.
func authorizeHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	writeJSON(w, http.StatusOK, id)
}
