// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package scram_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/momeni/dbinst/pkg/adapter/hash/scram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashIsDeterministicForFixedSalt(t *testing.T) {
	m := scram.SHA256()
	salt := "c2FsdHNhbHRzYWx0" // "saltsaltsalt"
	h1, err := m.Hash("secret", salt, 4096)
	require.NoError(t, err)
	h2, err := m.Hash("secret", salt, 4096)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.True(t, strings.HasPrefix(h1, "SCRAM-SHA-256$4096:"+salt+"$"))

	h3, err := m.Hash("other", salt, 4096)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestHashRejectsBadInput(t *testing.T) {
	m := scram.SHA1()
	_, err := m.Hash("", "", 4096)
	assert.Error(t, err)
	_, err = m.Hash("pass", "", 1000)
	assert.Error(t, err)
	_, err = m.Hash("pass", "not base64!", 4096)
	assert.Error(t, err)
}

func TestVerifierUsesRandomSalt(t *testing.T) {
	m := scram.SHA256()
	v1, err := m.Verifier("secret")
	require.NoError(t, err)
	v2, err := m.Verifier("secret")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)
	assert.True(t, strings.HasPrefix(v1, "SCRAM-SHA-256$15000:"))
}

func TestByName(t *testing.T) {
	for _, name := range []string{"", "scram-sha-256", "scram-sha-1"} {
		_, err := scram.ByName(name)
		assert.NoError(t, err, name)
	}
	_, err := scram.ByName("md5")
	assert.Error(t, err)
}

func TestWritePasswordFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "pwfile")
	require.NoError(t, scram.WritePasswordFile(scram.SHA256(), path, "pw"))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "SCRAM-SHA-256$"))
	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}
