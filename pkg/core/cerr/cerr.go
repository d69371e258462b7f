// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package cerr contains the core layer errors. The Error type attaches
// an HTTP status code to an arbitrary error, so use cases may classify
// their failures without depending on a specific transport, while the
// upgrade specific error types carry enough context for the operator
// facing layers to print a recovery hint and select an exit code.
package cerr

import (
	"fmt"
	"net/http"
)

// Error wraps Err and classifies it by an HTTP status code.
type Error struct {
	Err            error
	HTTPStatusCode int
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%d] %s", e.HTTPStatusCode, e.Err.Error())
}

// HTTPStatus returns the status code which should be reported to the
// REST clients.
func (e *Error) HTTPStatus() int {
	return e.HTTPStatusCode
}

func BadRequest(err error) *Error {
	return &Error{Err: err, HTTPStatusCode: http.StatusBadRequest}
}

func NotFound(err error) *Error {
	return &Error{Err: err, HTTPStatusCode: http.StatusNotFound}
}

func Conflict(err error) *Error {
	return &Error{Err: err, HTTPStatusCode: http.StatusConflict}
}

func Unavailable(err error) *Error {
	return &Error{Err: err, HTTPStatusCode: http.StatusServiceUnavailable}
}
