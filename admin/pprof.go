// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package admin

import (
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	"strings"
)

// Init turns on the block and mutex profilers unless they're disabled
// through PPROF_BLOCK / PPROF_MUTEX.
func Init() error {
	if profileEnabled("block") {
		runtime.SetBlockProfileRate(1)
	}
	if profileEnabled("mutex") {
		runtime.SetMutexProfileFraction(1)
	}
	return nil
}

type profile struct {
	// on is used when PPROF_<NAME> is unset or unrecognized.
	on bool

	// handler serves the profile. nil means pprof.Handler(name).
	handler http.HandlerFunc
}

// profiles lists the /debug/pprof/<name> endpoints. Dumps include heap
// contents (password hashes, emails, cpf numbers) so they're only ever
// mounted on the admin listener.
var profiles = map[string]profile{
	"allocs":       {on: true},
	"block":        {on: true},
	"cmdline":      {on: true, handler: pprof.Cmdline},
	"goroutine":    {on: true},
	"heap":         {on: true},
	"mutex":        {on: true},
	"profile":      {on: true, handler: pprof.Profile},
	"threadcreate": {on: false},
	"trace":        {on: false, handler: pprof.Trace},
}

// profileEnabled reads PPROF_<NAME>: "yes" or "no" (any case) decide,
// anything else keeps the default from profiles.
func profileEnabled(name string) bool {
	v, _ := os.LookupEnv("PPROF_" + strings.ToUpper(name))
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes":
		return true
	case "no":
		return false
	}
	return profiles[name].on
}

func profileHandler(name string) http.Handler {
	if h := profiles[name].handler; h != nil {
		return h
	}
	return pprof.Handler(name)
}
