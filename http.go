// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

const (
	// maxReadBytes is the number of bytes to read
	// from a request body. It's intended to be used
	// with an io.LimitReader
	maxReadBytes = 1 * 1024 * 1024
)

// read consumes an io.Reader (wrapping with io.LimitReader)
// and returns either the resulting bytes or a non-nil error.
func read(r io.Reader) ([]byte, error) {
	r = io.LimitReader(r, maxReadBytes)
	return io.ReadAll(r)
}

// decodeBody reads the request body as JSON into v. Problems with the
// body are reported as validation errors.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return newValidationError("request body is required")
	}
	bs, err := read(r.Body)
	if err != nil {
		return fmt.Errorf("problem reading request body: %v", err)
	}
	if len(bs) == 0 {
		return newValidationError("request body is required")
	}
	if err := json.Unmarshal(bs, v); err != nil {
		return newValidationError(fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}

// pathID parses the named mux variable as a positive integer id.
func pathID(r *http.Request, name string) (int64, error) {
	v := mux.Vars(r)[name]
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, newValidationError(fmt.Sprintf("invalid %s: %q", name, v))
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// encodeError JSON encodes the supplied error with the HTTP status
// statusCode picks for it. Internal faults are logged and replaced
// with a generic message.
func encodeError(logger log.Logger, w http.ResponseWriter, err error, component string) {
	if err == nil {
		return
	}
	status := statusCode(err)
	if status == http.StatusInternalServerError {
		internalError(logger, w, err, component)
		return
	}

	body := map[string]interface{}{
		"error": err.Error(),
	}
	var verr *validationError
	if errors.As(err, &verr) {
		body["errors"] = verr.messages
	}
	writeJSON(w, status, body)
}

func internalError(logger log.Logger, w http.ResponseWriter, err error, component string) {
	internalServerErrors.Add(1)
	logger.Log(component, err)
	writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"error": "Internal Server Error",
	})
}
