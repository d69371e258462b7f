// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/momeni/dbinst/pkg/adapter/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingDefaultFile(t *testing.T) {
	t.Setenv(config.PathEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	c, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", c.Log.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	c, err := config.Parse([]byte(`# mine
log:
    format: json
versions:
    config: 1.0.0
`))
	require.NoError(t, err)
	require.NoError(t, config.Save(path, c, false))
	assert.ErrorIs(t, config.Save(path, c, false), os.ErrExist)
	require.NoError(t, config.Save(path, c, true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# mine")

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "json", loaded.Log.Format)
	assert.Equal(t, c.Dirs, loaded.Dirs)
}

func TestParseRejectsUnknownMajor(t *testing.T) {
	_, err := config.Parse([]byte("versions:\n  config: 3.1.0\n"))
	assert.ErrorContains(t, err, "unexpected config version")
	_, err = config.Parse([]byte("log:\n  level: info\n"))
	assert.ErrorContains(t, err, "missing versions.config")
}
