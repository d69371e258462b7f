// Copyright (c) 2023-2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config is an adapter which accepts yaml formatted config
// files from its users and allows the dbinst command to instantiate
// different components, from the adapter or use cases layers, using
// those loaded configuration settings.
// These settings are versioned and maintained by sub-packages.
// The parsed and validated configurations are passed to their
// ultimate components as a series of individual params (for the
// mandatory items) and a series of functional options (for the
// optional items).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/momeni/dbinst/pkg/adapter/config/cfg1"
	"github.com/momeni/dbinst/pkg/adapter/config/vers"
	"gopkg.in/yaml.v3"
)

// PathEnv is the environment variable which may name the configuration
// file when no explicit path is given.
const PathEnv = "DBINST_CONFIG"

// DefaultPath returns the path of the configuration file which is used
// when neither an explicit path nor the PathEnv variable is given.
func DefaultPath() string {
	if p := os.Getenv(PathEnv); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "dbinst", "config.yaml")
}

// Load function loads, validates, and normalizes the configuration
// file and returns its settings as an instance of the Config struct.
// A missing file is not an error if it is the default file, so the
// command line tool works without any configuration. In that case,
// the default settings are returned.
func Load(path string) (*cfg1.Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
	case !explicit && errors.Is(err, fs.ErrNotExist):
		return cfg1.Default()
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse is like Load, but it takes the configuration file contents.
func Parse(data []byte) (*cfg1.Config, error) {
	v, err := vers.Load(data)
	if err != nil {
		return nil, fmt.Errorf("loading versions: %w", err)
	}
	if v.Versions.Config.Major() != cfg1.Major {
		return nil, fmt.Errorf(
			"unexpected config version: %s",
			v.Versions.Config.String(),
		)
	}
	c, err := cfg1.Load(data)
	if err != nil {
		return nil, fmt.Errorf("loading cfg1.Config: %w", err)
	}
	return c, nil
}

// Save writes c into path, creating its parent directories as needed.
// An existing file is only replaced when overwrite is true.
func Save(path string, c *cfg1.Config, overwrite bool) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing config file: %w", err)
	}
	return f.Close()
}
