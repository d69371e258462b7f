// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package dbcontainer is an internal helper for the test packages.
// This packages facilitates creation of temporary postgres podman
// containers and connecting to them, using a *postgres.Pool connection
// pool. It may be used in all integration-level test suites which
// require a real PostgreSQL server, such as the dump and restore tests
// which need a source and a target server of distinct major versions.
package dbcontainer

import (
	"context"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/bitcomplete/sqltestutil"
	"github.com/juju/clock"
	"github.com/momeni/dbinst/pkg/adapter/db/postgres"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/stretchr/testify/assert"
)

// New creates and starts up a postgres podman container running the
// given major version of the server.
// The podman.service needs to be started and the DOCKER_HOST
// environment variable needs to be initialized beforehand like
// DOCKER_HOST=unix://$XDG_RUNTIME_DIR/podman/podman.sock
// in order to be identified by this function properly. If no container
// can be started, the test is skipped.
// The ctx will be used during the container start up and shutdown,
// while the timeout will be considered only during the start up phase.
func New(
	ctx context.Context, version string, timeout time.Duration, t *testing.T,
) (
	pg *sqltestutil.PostgresContainer,
	pool *postgres.Pool,
	dfrs []func(),
	ok bool,
) {
	ctx2, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	pg, err := sqltestutil.StartPostgresContainer(ctx2, version)
	if err != nil {
		t.Skipf("cannot start a postgres:%s container: %v", version, err)
		return
	}
	dfrs = append(dfrs, func() {
		err := pg.Shutdown(ctx)
		assert.NoError(t, err, "failed to shutdown test database")
	})
	pool, err = postgres.WaitPool(
		ctx2, pg.ConnectionString(), timeout, clock.WallClock,
	)
	ok = assert.NoError(t, err, "cannot connect to test database")
	if !ok {
		return
	}
	dfrs = append(dfrs, func() {
		err := pool.Close()
		assert.NoError(t, err, "failed to close the connections pool")
	})
	return
}

// ConnParams converts the connection string of pg to the connection
// parameters of an administrative connection.
func ConnParams(pg *sqltestutil.PostgresContainer) (model.ConnParams, error) {
	u, err := url.Parse(pg.ConnectionString())
	if err != nil {
		return model.ConnParams{}, err
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return model.ConnParams{}, err
	}
	pass, _ := u.User.Password()
	return model.ConnParams{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: pass,
		Database: u.Path[1:],
	}, nil
}
