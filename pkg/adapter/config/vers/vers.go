// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package vers reads the format version of a configuration file before
// the rest of it is decoded, so the matching cfgN package can be picked
// for the actual settings. The versions block is expected to change
// less often than the settings themselves.
package vers

import (
	"fmt"

	"github.com/momeni/dbinst/pkg/core/model"
	"gopkg.in/yaml.v3"
)

// Config is embedded inline by the cfgN structs in order to carry
// their versions block.
type Config struct {
	Versions Versions `yaml:"versions"`
}

// Versions contains the format version of the configuration file.
type Versions struct {
	Config model.Version `yaml:"config"`
}

// Marshalled replaces the model.Version fields of Config with their
// string forms for YAML serialization. MarshalYAML is only honored for
// the top level value, so the nested cfgN structs collect Marshalled
// values from their fields instead.
type Marshalled struct {
	Versions struct {
		Config string `yaml:"config"`
	} `yaml:"versions"`
}

// Marshal creates a Marshalled instance representing vc.
func (vc *Config) Marshal() *Marshalled {
	m := &Marshalled{}
	m.Versions.Config = vc.Versions.Config.String()
	return m
}

// Load decodes the versions block of data, ignoring other fields.
func Load(data []byte) (*Config, error) {
	vc := &Config{}
	if err := yaml.Unmarshal(data, vc); err != nil {
		return nil, err
	}
	if vc.Versions.Config.IsZero() {
		return nil, fmt.Errorf("missing versions.config")
	}
	return vc, nil
}

// Validate returns an error if the configuration version of vc cannot
// be loaded by an implementation of the given major and minor version.
// The major versions must match, and vc must not be newer in its minor
// version.
func (vc *Config) Validate(major, minor uint64) error {
	v := vc.Versions.Config
	if v.Major() != major {
		return fmt.Errorf("incompatible major version: %d", v.Major())
	}
	if v.Minor() > minor {
		return fmt.Errorf("unsupported minor version: %d", v.Minor())
	}
	return nil
}
