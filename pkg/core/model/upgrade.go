// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package model

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// UpgradeMeta is the content of an upgrade marker file. The marker is
// written before the data directory is moved aside and is removed only
// after the upgraded instance is fully operational, so its presence
// means that an upgrade is in progress or was left incomplete.
type UpgradeMeta struct {
	Source  Version   `json:"source"`
	Target  Version   `json:"target"`
	Started time.Time `json:"started"`
	PID     int       `json:"pid"`
	Attempt uuid.UUID `json:"attempt"`
}

// BackupMeta is written into a data directory right before it is
// renamed to become a backup directory. A backup directory without it
// was not produced by a complete backup step.
type BackupMeta struct {
	Timestamp time.Time `json:"timestamp"`
}

// UpgradeAction is the outcome kind of an upgrade request.
type UpgradeAction int

// Possible upgrade actions.
const (
	ActionNone      UpgradeAction = iota // already up to date
	ActionUpgraded                       // upgrade was performed
	ActionCancelled                      // user declined the upgrade
)

func (a UpgradeAction) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionUpgraded:
		return "upgraded"
	case ActionCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalText implements the encoding.TextMarshaler interface.
func (a UpgradeAction) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UpgradeResult is the immutable outcome of one upgrade request.
// AvailableUpgrade is set when no upgrade was performed, but a newer
// version exists outside of the requested query.
type UpgradeResult struct {
	Action           UpgradeAction `json:"action"`
	PriorVersion     Version       `json:"prior_version"`
	RequestedVersion Version       `json:"requested_version"`
	AvailableUpgrade *Version      `json:"available_upgrade,omitempty"`
}

// UpgradePath tells how a local instance is upgraded. It is decided
// once per upgrade and the two step sequences never mix.
type UpgradePath int

// Possible upgrade paths.
const (
	// CompatiblePath replaces the server binary in place.
	CompatiblePath UpgradePath = iota
	// IncompatiblePath migrates the data through a dump and restore.
	IncompatiblePath
)

func (p UpgradePath) String() string {
	if p == IncompatiblePath {
		return "dump-restore"
	}
	return "in-place"
}

// LogValue implements the slog.LogValuer interface.
func (p UpgradePath) LogValue() slog.Value {
	return slog.StringValue(p.String())
}

// MarshalText implements the encoding.TextMarshaler interface.
func (p UpgradePath) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UpgradeReport extends an UpgradeResult with the details of a local
// upgrade. Warnings collects the errors of best-effort steps which did
// not abort the upgrade.
type UpgradeReport struct {
	UpgradeResult
	Instance string       `json:"instance"`
	Path     UpgradePath  `json:"path"`
	Package  *PackageInfo `json:"package,omitempty"`
	Query    VersionQuery `json:"query"`
	Projects []string     `json:"projects,omitempty"`
	Warnings []error      `json:"-"`
}
