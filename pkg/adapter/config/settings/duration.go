// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package settings provides the value types and helpers which are
// shared by the versioned configuration packages, such as durations
// with a compact YAML form and range verification of bounded settings.
package settings

import (
	"errors"
	"log/slog"
	"strings"
	"time"
)

// Duration is a time.Duration which is written in a compact form,
// e.g., 5m instead of 5m0s.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler using the
// time.ParseDuration format. In case of errors, d is left unchanged.
func (d *Duration) UnmarshalText(data []byte) error {
	dd, err := time.ParseDuration(string(data))
	if err != nil {
		return err
	}
	*d = Duration(dd)
	return nil
}

// Marshal returns the compact form of d, or nil if d is nil, so it
// can fill the optional fields of the cfgN Marshalled structs.
// A zero duration is written as 0s.
func (d *Duration) Marshal() *string {
	if d == nil {
		return nil
	}
	s := (*time.Duration)(d).String()
	if strings.HasSuffix(s, "m0s") {
		s = s[:len(s)-2]
	}
	if strings.HasSuffix(s, "h0m") {
		s = s[:len(s)-2]
	}
	return &s
}

// MarshalText implements encoding.TextMarshaler.
func (d *Duration) MarshalText() ([]byte, error) {
	if s := d.Marshal(); s != nil {
		return []byte(*s), nil
	}
	return nil, errors.New("nil duration")
}

// Std returns d as a time.Duration, or dflt if d is nil.
func (d *Duration) Std(dflt time.Duration) time.Duration {
	if d == nil {
		return dflt
	}
	return time.Duration(*d)
}

// LogValue implements slog.LogValuer.
func (d *Duration) LogValue() slog.Value {
	if d == nil {
		return slog.StringValue("nil-duration")
	}
	return slog.DurationValue(time.Duration(*d))
}
