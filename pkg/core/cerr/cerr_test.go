// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cerr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/momeni/dbinst/pkg/core/cerr"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	a := assert.New(t)
	cause := errors.New("server crashed")
	a.Equal(cerr.ExitOK, cerr.ExitCode(nil))
	a.Equal(cerr.ExitFailure, cerr.ExitCode(cause))
	a.Equal(cerr.ExitFailure, cerr.ExitCode(
		&cerr.DumpError{Instance: "main", Err: cause},
	))
	restore := fmt.Errorf("upgrading: %w", &cerr.RestoreError{
		Instance: "main", Err: cause,
	})
	a.Equal(cerr.ExitNeedsRevert, cerr.ExitCode(restore))
	a.True(errors.Is(restore, cause), "cause must be preserved")
}

func TestRestoreErrorRevertCommand(t *testing.T) {
	err := &cerr.RestoreError{Instance: "main", Err: errors.New("x")}
	assert.Equal(t, `dbinst instance revert -I "main"`, err.RevertCommand())
	assert.Equal(t, `cannot restore "main": x`, err.Error())
	assert.Equal(t, err.RevertCommand(), cerr.RevertCommandOf(
		fmt.Errorf("upgrading: %w", err),
	))
	assert.Empty(t, cerr.RevertCommandOf(errors.New("x")))
	assert.Empty(t, cerr.RevertCommandOf(nil))
}

func TestHTTPStatus(t *testing.T) {
	var hs interface{ HTTPStatus() int }
	err := fmt.Errorf("wrapped: %w", &cerr.UpgradeInProgressError{
		Instance: "main",
	})
	if assert.True(t, errors.As(err, &hs)) {
		assert.Equal(t, http.StatusConflict, hs.HTTPStatus())
	}
	assert.Contains(t, err.Error(), "revert")
}

func ExampleMismatchingVersionError() {
	err := fmt.Errorf("installed build: %w", &cerr.MismatchingVersionError{
		model.MustParseVersion("16.1"), model.MustParseVersion("16.0"),
	})
	fmt.Println(err)
	// Output:
	// installed build: expected v16.1, but got v16.0
}
