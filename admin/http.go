// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

// Package admin serves the operator endpoints (metrics, liveness and
// pprof) on a listener separate from the public API.
package admin

import (
	"context"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupServer returns the admin server which will listen on addr.
// An empty addr listens on ":9090".
func SetupServer(addr string) *Server {
	if addr == "" {
		addr = ":9090"
	}
	timeout := 45 * time.Second
	return &Server{
		svc: &http.Server{
			Addr:         addr,
			Handler:      handler(),
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
			IdleTimeout:  timeout,
		},
	}
}

// Server represents a holder around a net/http Server which
// is used for admin endpoints. (i.e. metrics, healthcheck)
type Server struct {
	svc *http.Server
}

func (s *Server) BindAddress() string {
	if s == nil || s.svc == nil {
		return ""
	}
	return s.svc.Addr
}

// Listen brings up the admin HTTP service. This call blocks.
func (s *Server) Listen() error {
	if s == nil || s.svc == nil {
		return nil
	}
	return s.svc.ListenAndServe()
}

// Shutdown unbinds the HTTP server.
func (s *Server) Shutdown() {
	if s == nil || s.svc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.svc.Shutdown(ctx)
}

func handler() http.Handler {
	r := mux.NewRouter()

	// prometheus metrics
	r.Methods("GET").Path("/metrics").Handler(promhttp.Handler())

	// liveness
	r.Methods("GET").Path("/live").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.HandleFunc("/debug/pprof/", pprof.Index)
	for name := range profiles {
		if profileEnabled(name) {
			r.Handle("/debug/pprof/"+name, profileHandler(name))
		}
	}

	return r
}
