// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package rest_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/momeni/dbinst/pkg/adapter/cloud/rest"
	"github.com/momeni/dbinst/pkg/core/cerr"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type controlPlane struct {
	mu       sync.Mutex
	upgrades []model.CloudUpgradeRequest
}

func (cp *controlPlane) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer t0ken" {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":"bad token"}`)
		return
	}
	if _, err := uuid.Parse(r.Header.Get("X-Request-ID")); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/v1/orgs/acme/instances/web":
		io.WriteString(w, `{"id":"i-1","org_slug":"acme","name":"web",`+
			`"version":"15.4","status":"available"}`)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/versions":
		switch r.URL.Query().Get("channel") + "/" + r.URL.Query().Get("constraint") {
		case "stable/":
			io.WriteString(w, `{"version":"16.2"}`)
		case "stable/15":
			io.WriteString(w, `{"version":"15.6"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":"no such version"}`)
		}
	case r.Method == http.MethodPost &&
		r.URL.Path == "/v1/orgs/acme/instances/web/upgrade":
		req := model.CloudUpgradeRequest{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		cp.mu.Lock()
		cp.upgrades = append(cp.upgrades, req)
		cp.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	default:
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"not found"}`)
	}
}

func newClient(t *testing.T, token string) (*rest.Client, *controlPlane) {
	cp := &controlPlane{}
	srv := httptest.NewServer(cp)
	t.Cleanup(srv.Close)
	c, err := rest.New(srv.URL+"/v1", token)
	require.NoError(t, err)
	return c, cp
}

func TestFindInstance(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t, "t0ken")
	ci, err := c.FindInstance(ctx, "acme", "web")
	require.NoError(t, err)
	require.NotNil(t, ci)
	assert.Equal(t, "acme/web", ci.FullName())
	assert.Equal(t, "15.4", ci.Version.String())

	ci, err = c.FindInstance(ctx, "acme", "db")
	assert.NoError(t, err)
	assert.Nil(t, ci)
}

func TestResolveVersion(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t, "t0ken")
	v, err := c.ResolveVersion(ctx, model.StableQuery())
	require.NoError(t, err)
	assert.Equal(t, "16.2", v.String())

	v, err = c.ResolveVersion(ctx, model.VersionQuery{
		Channel: model.ChannelStable, Constraint: "15",
	})
	require.NoError(t, err)
	assert.Equal(t, "15.6", v.String())

	_, err = c.ResolveVersion(ctx, model.VersionQuery{Channel: model.ChannelNightly})
	var nm *cerr.NoMatchingPackageError
	assert.ErrorAs(t, err, &nm)
}

func TestUpgradeInstance(t *testing.T) {
	c, cp := newClient(t, "t0ken")
	err := c.UpgradeInstance(context.Background(), model.CloudUpgradeRequest{
		Org: "acme", Name: "web", Version: model.MustParseVersion("16.2"),
	})
	require.NoError(t, err)
	require.Len(t, cp.upgrades, 1)
	assert.Equal(t, "16.2", cp.upgrades[0].Version.String())
	assert.False(t, cp.upgrades[0].Force)
}

func TestAPIError(t *testing.T) {
	c, _ := newClient(t, "wrong")
	_, err := c.FindInstance(context.Background(), "acme", "web")
	var apiErr *rest.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "bad token", apiErr.Message)
	assert.Equal(t, http.StatusBadGateway, apiErr.HTTPStatus())
	_, err = uuid.Parse(apiErr.RequestID)
	assert.NoError(t, err)
}

func TestNewRequiresToken(t *testing.T) {
	_, err := rest.New("https://api.example.com/v1", "")
	assert.ErrorIs(t, err, rest.ErrNoToken)
	_, err = rest.New("ftp://api.example.com", "x")
	assert.Error(t, err)
}
