// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package httpcat_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/momeni/dbinst/pkg/adapter/catalog/httpcat"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const indexDoc = `{"packages": [
  {"name": "pg-15.4", "version": "15.4", "url": "15.4/pg.tar.zst", "sha256": "aa", "size": 10},
  {"name": "pg-15.6", "version": "15.6", "url": "15.6/pg.tar.zst", "sha256": "bb", "size": 11},
  {"name": "pg-16.2", "version": "16.2", "url": "https://mirror.example/pg-16.2.tar.zst", "sha256": "cc", "size": 12},
  {"name": "pg-17.0-rc.1", "version": "17.0-rc.1", "url": "17/pg.tar.zst", "sha256": "dd", "size": 13},
  {"name": "pg-18.0-dev.7", "version": "18.0-dev.7", "url": "18/pg.tar.zst", "sha256": "ee", "size": 14},
  {"name": "broken", "version": "not-a-version", "url": "x", "sha256": "ff", "size": 1}
]}`

func TestFindPackageOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/dist/index.json" {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(indexDoc))
		},
	))
	defer srv.Close()

	c, err := httpcat.New(srv.URL + "/dist/index.json")
	require.NoError(t, err)
	ctx := context.Background()

	cases := []struct {
		q       model.VersionQuery
		version string
		url     string
	}{
		{
			model.VersionQuery{Channel: model.ChannelStable, Constraint: "15"},
			"15.6", srv.URL + "/dist/15.6/pg.tar.zst",
		},
		{
			model.StableQuery(),
			"16.2", "https://mirror.example/pg-16.2.tar.zst",
		},
		{
			model.VersionQuery{Channel: model.ChannelTesting},
			"17.0-rc.1", srv.URL + "/dist/17/pg.tar.zst",
		},
		{
			model.VersionQuery{Channel: model.ChannelNightly},
			"18.0-dev.7", srv.URL + "/dist/18/pg.tar.zst",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.q.String(), func(t *testing.T) {
			pkg, err := c.FindPackage(ctx, tc.q)
			require.NoError(t, err)
			require.NotNil(t, pkg)
			assert.Equal(t, tc.version, pkg.Version.String())
			assert.Equal(t, tc.url, pkg.URL)
			assert.Equal(t, model.ChannelOf(pkg.Version), pkg.Channel)
		})
	}

	pkg, err := c.FindPackage(ctx, model.VersionQuery{
		Channel: model.ChannelStable, Constraint: "14",
	})
	require.NoError(t, err)
	assert.Nil(t, pkg)

	bad, err := httpcat.New(srv.URL + "/missing.json")
	require.NoError(t, err)
	_, err = bad.FindPackage(ctx, model.StableQuery())
	assert.Error(t, err)
}

func TestFindPackageFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, os.WriteFile(path, []byte(indexDoc), 0o644))
	c, err := httpcat.New(path)
	require.NoError(t, err)
	pkg, err := c.FindPackage(context.Background(), model.StableQuery())
	require.NoError(t, err)
	require.NotNil(t, pkg)
	assert.Equal(t, "pg-16.2", pkg.Name)
	assert.Equal(t, "cc", pkg.SHA256)
}

func TestNewRejectsUnknownSchemes(t *testing.T) {
	_, err := httpcat.New("ftp://example.com/index.json")
	assert.Error(t, err)
}
