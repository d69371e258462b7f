// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Channel identifies a release stream of server packages.
type Channel string

// Supported release channels. Each channel also accepts the builds of
// the channels which precede it, so testing includes stable releases
// and nightly includes everything.
const (
	ChannelStable  Channel = "stable"
	ChannelTesting Channel = "testing"
	ChannelNightly Channel = "nightly"
)

// ParseChannel validates s as a known Channel name.
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(strings.ToLower(s)); c {
	case ChannelStable, ChannelTesting, ChannelNightly:
		return c, nil
	default:
		return "", fmt.Errorf("unknown channel %q", s)
	}
}

func (c Channel) rank() int {
	switch c {
	case ChannelTesting:
		return 1
	case ChannelNightly:
		return 2
	default:
		return 0
	}
}

// ChannelOf returns the narrowest channel which publishes v.
// Versions with a "dev" prerelease are nightly builds, other
// prereleases (alpha, beta, rc) are testing builds.
func ChannelOf(v Version) Channel {
	pre := v.Prerelease()
	switch {
	case pre == "":
		return ChannelStable
	case strings.HasPrefix(pre, "dev"):
		return ChannelNightly
	default:
		return ChannelTesting
	}
}

// VersionQuery filters the packages of a catalog. Channel is mandatory
// and Constraint is an optional semantic version constraint such as
// "15", "15.3", or ">=15, <17". Among the matching packages, the
// greatest version is selected.
type VersionQuery struct {
	Channel    Channel `json:"channel"`
	Constraint string  `json:"constraint,omitempty"`
}

// StableQuery returns a query for the latest stable version.
func StableQuery() VersionQuery {
	return VersionQuery{Channel: ChannelStable}
}

// QueryFromVersion returns a query which tracks the major version of
// v on the channel of v. It is the default query for upgrading a local
// instance, so a plain upgrade never crosses a major version.
func QueryFromVersion(v Version) VersionQuery {
	return VersionQuery{
		Channel:    ChannelOf(v),
		Constraint: fmt.Sprintf("%d", v.Major()),
	}
}

// Validate checks that q has a known channel and a parsable
// constraint.
func (q VersionQuery) Validate() error {
	if _, err := ParseChannel(string(q.Channel)); err != nil {
		return err
	}
	if q.Constraint == "" {
		return nil
	}
	if _, err := semver.NewConstraint(q.Constraint); err != nil {
		return fmt.Errorf("invalid version constraint %q: %w", q.Constraint, err)
	}
	return nil
}

// Matches reports whether v is published on the q channel and
// satisfies its constraint. Prerelease qualifiers are ignored while
// checking the constraint, so "17" matches 17.0-dev.8421 on the
// nightly channel.
func (q VersionQuery) Matches(v Version) bool {
	if v.IsZero() || ChannelOf(v).rank() > q.Channel.rank() {
		return false
	}
	if q.Constraint == "" {
		return true
	}
	c, err := semver.NewConstraint(q.Constraint)
	if err != nil {
		return false
	}
	core := semver.New(v.v.Major(), v.v.Minor(), v.v.Patch(), "", "")
	return c.Check(core) || c.Check(v.v)
}

// Flag returns the command line option which selects the q query when
// passed to an upgrade command.
func (q VersionQuery) Flag() string {
	switch {
	case q.Constraint != "":
		return "--to-version=" + q.Constraint
	case q.Channel == ChannelNightly:
		return "--to-nightly"
	case q.Channel == ChannelTesting:
		return "--to-testing"
	default:
		return "--to-latest"
	}
}

// String describes q for humans, e.g., "stable 15" or "nightly".
func (q VersionQuery) String() string {
	if q.Constraint == "" {
		return string(q.Channel)
	}
	return string(q.Channel) + " " + q.Constraint
}

// QueryOptions collects the mutually exclusive command line options
// which may select the target version of an upgrade.
type QueryOptions struct {
	Latest  bool   // the latest stable version
	Nightly bool   // the latest nightly build
	Testing bool   // the latest testing build
	Channel string // the latest version of a named channel
	Version string // a specific (possibly partial) version
}

// ErrConflictingQueryOptions indicates that more than one version
// selecting option was given.
var ErrConflictingQueryOptions = errors.New(
	"only one of --to-latest, --to-nightly, --to-testing, " +
		"--to-channel, and --to-version may be given",
)

// FromOptions converts opts to a VersionQuery. The returned boolean
// reports whether any version selecting option was present. If no
// option was given, the dflt function is used for computing the query.
func FromOptions(
	opts QueryOptions, dflt func() (VersionQuery, error),
) (VersionQuery, bool, error) {
	n := 0
	for _, set := range []bool{
		opts.Latest, opts.Nightly, opts.Testing,
		opts.Channel != "", opts.Version != "",
	} {
		if set {
			n++
		}
	}
	if n > 1 {
		return VersionQuery{}, false, ErrConflictingQueryOptions
	}
	var q VersionQuery
	switch {
	case opts.Latest:
		q = StableQuery()
	case opts.Nightly:
		q = VersionQuery{Channel: ChannelNightly}
	case opts.Testing:
		q = VersionQuery{Channel: ChannelTesting}
	case opts.Channel != "":
		c, err := ParseChannel(opts.Channel)
		if err != nil {
			return VersionQuery{}, false, err
		}
		q = VersionQuery{Channel: c}
	case opts.Version != "":
		c := ChannelStable
		if v, err := ParseVersion(opts.Version); err == nil {
			c = ChannelOf(v)
		}
		q = VersionQuery{Channel: c, Constraint: opts.Version}
	default:
		q, err := dflt()
		if err != nil {
			return VersionQuery{}, false, err
		}
		return q, false, nil
	}
	if err := q.Validate(); err != nil {
		return VersionQuery{}, false, err
	}
	return q, true, nil
}
