// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package model

import (
	"errors"
	"path/filepath"
	"time"
)

// ErrNotInstalled indicates that an instance metadata file carries no
// installation record, so its server version is unknown.
var ErrNotInstalled = errors.New("instance has no installation record")

// InstanceInfo identifies a local instance. It is persisted as the
// instance_info.json file inside the instance data directory and is
// rewritten when an upgrade commits a new installation.
type InstanceInfo struct {
	Name         string       `json:"name"`
	Port         int          `json:"port"`
	Installation *InstallInfo `json:"installation,omitempty"`
}

// Version returns the installed server version of the instance.
func (ii *InstanceInfo) Version() (Version, error) {
	if ii.Installation == nil {
		return Version{}, ErrNotInstalled
	}
	return ii.Installation.Version, nil
}

// InstallInfo describes an unpacked server build.
type InstallInfo struct {
	Version     Version   `json:"version"`
	PackageName string    `json:"package_name"`
	ServerDir   string    `json:"server_dir"`
	InstalledAt time.Time `json:"installed_at"`
}

// ServerBinary returns the path of the named executable (such as
// "postgres" or "initdb") of the ii installation.
func (ii *InstallInfo) ServerBinary(name string) string {
	return filepath.Join(ii.ServerDir, "bin", name)
}

// PackageInfo describes an installable server build as published by
// a package catalog.
type PackageInfo struct {
	Name    string  `json:"name"`
	Version Version `json:"version"`
	Channel Channel `json:"channel"`
	URL     string  `json:"url"`
	SHA256  string  `json:"sha256"`
	Size    int64   `json:"size"`
}

// Paths bundles the filesystem locations of one instance.
// DataDir and BackupDir are never live at the same time. A single
// rename operation moves the live data directory aside as a backup
// and the revert operation renames it back.
type Paths struct {
	DataDir       string `json:"data_dir"`
	BackupDir     string `json:"backup_dir"`
	DumpPath      string `json:"dump_path"`
	UpgradeMarker string `json:"upgrade_marker"`
	RuntimeDir    string `json:"runtime_dir"`
}

// Names of the files which are kept inside a data directory.
const (
	InstanceInfoFile = "instance_info.json"
	BackupMetaFile   = "backup.json"
	TLSCertFile      = "server.crt"
	TLSKeyFile       = "server.key"
)

// InstanceInfoPath returns the path of the instance metadata file.
func (p Paths) InstanceInfoPath() string {
	return filepath.Join(p.DataDir, InstanceInfoFile)
}

// ConnParams holds the parameters which are required for opening an
// administrative connection to a local server. Host may be a unix
// domain socket directory.
type ConnParams struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// InstanceStatus summarizes the upgrade related state of an instance.
// Marker is non-nil while an upgrade is in progress (or was left
// incomplete) and Backup is non-nil when a preserved backup directory
// exists.
type InstanceStatus struct {
	Instance      InstanceInfo
	Paths         Paths
	DataDirExists bool
	Marker        *UpgradeMeta
	Backup        *BackupMeta
	Projects      []string
}

// NeedsRevert reports whether the instance was left mid-upgrade.
func (is *InstanceStatus) NeedsRevert() bool {
	return is.Marker != nil
}
