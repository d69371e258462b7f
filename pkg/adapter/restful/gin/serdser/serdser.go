// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package serdser contains the request deserialization and response
// serialization helpers which are shared by the REST resources.
package serdser

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/momeni/dbinst/pkg/core/cerr"
)

// Bind decodes the request into req using b, and validates it based
// on its binding tags. On failure, a 400 response listing the failing
// fields is written and false is returned.
func Bind(c *gin.Context, req any, b binding.Binding) bool {
	var err error
	if b == nil {
		err = c.ShouldBindUri(req)
	} else {
		err = c.ShouldBindWith(req, b)
	}
	switch err := err.(type) {
	case nil:
		return true
	case *validator.InvalidValidationError:
		c.JSON(http.StatusInternalServerError, gin.H{
			"detail": err.Error(),
		})
	case validator.ValidationErrors:
		var nameToErrs map[string][]string
		for _, ferr := range err {
			AddErr(&nameToErrs, ferr.Field(), ferr.Error())
		}
		c.JSON(http.StatusBadRequest, nameToErrs)
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"detail": err.Error(),
		})
	}
	return false
}

func AddErr(errs *map[string][]string, name string, msgs ...string) {
	if (*errs) == nil {
		*errs = make(map[string][]string)
	}
	(*errs)[name] = append((*errs)[name], msgs...)
}

type statusError interface {
	error
	HTTPStatus() int
}

type revertible interface {
	NeedsRevert() bool
	RevertCommand() string
}

// SerErr writes err as a JSON response. Its status code is taken from
// the first wrapped error which has an HTTPStatus method (500 if none)
// and errors which leave an instance mid-upgrade carry the command
// which reverts it.
func SerErr(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	detail := err.Error()
	var ce *cerr.Error
	var se statusError
	switch {
	case errors.As(err, &ce):
		status, detail = ce.HTTPStatusCode, ce.Err.Error()
	case errors.As(err, &se):
		status = se.HTTPStatus()
	}
	body := gin.H{"detail": detail}
	var rv revertible
	if errors.As(err, &rv) && rv.NeedsRevert() {
		body["needs_revert"] = true
		body["revert_command"] = rv.RevertCommand()
	}
	c.JSON(status, body)
}
