// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package model defines the inner most layer of the Clean Architecture
// containing the business-level models of the database instances
// manager. This layer may not depend on outer layers, while all other
// layers may depend on it.
// By the way, it is acceptable to annotate structs in this package with
// serialization tags because the same structs are persisted as JSON
// metadata files next to the managed data directories.
package model

import (
	"fmt"
	"log/slog"

	"github.com/Masterminds/semver/v3"
)

// Version represents a server build version such as 15.4, 16.0-rc.1,
// or 17.0-dev.8421+a1b2c3. Versions are totally ordered by the Compare
// method, following the semantic versioning precedence rules. The zero
// Version value represents an unknown version and sorts before all
// known versions.
type Version struct {
	v *semver.Version
}

// ParseVersion parses s as a (possibly partial) semantic version.
// Missing minor or patch components are taken as zero.
func ParseVersion(s string) (Version, error) {
	v, err := semver.NewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("parsing version %q: %w", s, err)
	}
	return Version{v: v}, nil
}

// MustParseVersion is like ParseVersion, but panics on errors.
// It is meant for constants and tests.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsZero reports whether v is the unknown version.
func (v Version) IsZero() bool {
	return v.v == nil
}

// Major returns the major component of v.
func (v Version) Major() uint64 {
	if v.v == nil {
		return 0
	}
	return v.v.Major()
}

// Minor returns the minor component of v.
func (v Version) Minor() uint64 {
	if v.v == nil {
		return 0
	}
	return v.v.Minor()
}

// Prerelease returns the prerelease qualifier of v, like "dev.8421",
// or an empty string for released versions.
func (v Version) Prerelease() string {
	if v.v == nil {
		return ""
	}
	return v.v.Prerelease()
}

// Compare returns -1, 0, or +1 if v is respectively less than, equal
// to, or greater than the other version. Build metadata is ignored.
func (v Version) Compare(other Version) int {
	switch {
	case v.v == nil && other.v == nil:
		return 0
	case v.v == nil:
		return -1
	case other.v == nil:
		return 1
	}
	return v.v.Compare(other.v)
}

// Less reports whether v sorts before the other version.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// Equal reports whether v and other have the same precedence.
func (v Version) Equal(other Version) bool {
	return v.Compare(other) == 0
}

// IsCompatible reports whether a server of version v can use the data
// directory which was created by a server of the other version without
// a dump and restore. Released versions are compatible within a major
// version. Development and testing builds (having a prerelease part)
// may change the on-disk format at any time, so they are only
// compatible with the exact same build.
//
// The relation is only meaningful between an installed version and
// its upgrade candidate; it is not promised to be transitive.
func (v Version) IsCompatible(other Version) bool {
	if v.v == nil || other.v == nil {
		return false
	}
	if v.v.Major() != other.v.Major() {
		return false
	}
	if v.v.Prerelease() == "" && other.v.Prerelease() == "" {
		return true
	}
	return v.v.Compare(other.v) == 0
}

// String returns the original textual form of v, or an empty string
// for the zero Version.
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.Original()
}

// MarshalText implements the encoding.TextMarshaler interface.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
// An empty text resets v to the zero Version. In case of errors, v is
// left unchanged.
func (v *Version) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*v = Version{}
		return nil
	}
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// LogValue implements the slog.LogValuer interface.
func (v Version) LogValue() slog.Value {
	return slog.StringValue(v.String())
}
