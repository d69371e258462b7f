// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cerr

import "errors"

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitNeedsRevert = 2
)

// ExitCode maps err to the process exit code. Errors which require
// a manual revert get a distinct code, so scripts can detect them.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var nr interface{ NeedsRevert() bool }
	if errors.As(err, &nr) && nr.NeedsRevert() {
		return ExitNeedsRevert
	}
	return ExitFailure
}

// RevertCommandOf returns the command which undoes the failed upgrade
// that err reports, or an empty string if err does not need a revert.
func RevertCommandOf(err error) string {
	var rc interface {
		NeedsRevert() bool
		RevertCommand() string
	}
	if errors.As(err, &rc) && rc.NeedsRevert() {
		return rc.RevertCommand()
	}
	return ""
}
