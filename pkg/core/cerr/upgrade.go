// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cerr

import (
	"fmt"
	"net/http"

	"github.com/momeni/dbinst/pkg/core/model"
)

// RevertCommand returns the command line which reverts an incomplete
// upgrade of the name instance.
func RevertCommand(name string) string {
	return fmt.Sprintf("dbinst instance revert -I %q", name)
}

// NoMatchingPackageError indicates that a catalog has no package which
// satisfies the Query.
type NoMatchingPackageError struct {
	Query model.VersionQuery
}

func (e *NoMatchingPackageError) Error() string {
	return fmt.Sprintf(
		"no package found according to your criteria (%s)", e.Query,
	)
}

func (e *NoMatchingPackageError) HTTPStatus() int {
	return http.StatusNotFound
}

// UpgradeInProgressError indicates that the upgrade marker of Instance
// already exists, so another upgrade is running or an earlier one was
// left incomplete. Meta is nil if the marker could not be decoded.
type UpgradeInProgressError struct {
	Instance string
	Marker   string
	Meta     *model.UpgradeMeta
}

func (e *UpgradeInProgressError) Error() string {
	msg := fmt.Sprintf("upgrade of %q is already in progress", e.Instance)
	if e.Meta != nil {
		msg += fmt.Sprintf(
			" (%s to %s, started by pid %d)",
			e.Meta.Source, e.Meta.Target, e.Meta.PID,
		)
	}
	return msg + "; if it is not running anymore, run " +
		RevertCommand(e.Instance) + " first"
}

func (e *UpgradeInProgressError) HTTPStatus() int {
	return http.StatusConflict
}

// DumpError reports a failure before any destructive step of an
// upgrade. The instance data is untouched and the upgrade may be
// retried.
type DumpError struct {
	Instance string
	Err      error
}

func (e *DumpError) Error() string {
	return fmt.Sprintf("cannot dump %q: %v", e.Instance, e.Err)
}

func (e *DumpError) Unwrap() error {
	return e.Err
}

// BackupError reports a failure while moving the data directory aside.
type BackupError struct {
	Instance string
	Err      error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("cannot backup %q: %v", e.Instance, e.Err)
}

func (e *BackupError) Unwrap() error {
	return e.Err
}

// RestoreError reports a failure after the original data directory was
// moved aside. It is never retried automatically; the operator has to
// run the revert command.
type RestoreError struct {
	Instance string
	Err      error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("cannot restore %q: %v", e.Instance, e.Err)
}

func (e *RestoreError) Unwrap() error {
	return e.Err
}

// NeedsRevert reports that the instance must be reverted manually.
func (e *RestoreError) NeedsRevert() bool {
	return true
}

// RevertCommand returns the command which undoes the failed upgrade.
func (e *RestoreError) RevertCommand() string {
	return RevertCommand(e.Instance)
}
