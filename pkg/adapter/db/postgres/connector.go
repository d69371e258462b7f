// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/momeni/dbinst/pkg/core/log"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/momeni/dbinst/pkg/core/repo"
)

// cannotConnectNow is reported while the server is starting up.
const cannotConnectNow = "57P03"

// IsUnavailable reports whether err indicates a server which may accept
// connections later, i.e., it is starting up or is not listening yet.
func IsUnavailable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == cannotConnectNow
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// WaitPool opens a pool for url, retrying with an exponential backoff
// for up to wait while the server is unavailable. Other errors, such as
// authentication failures, are returned immediately.
func WaitPool(
	ctx context.Context, url string, wait time.Duration, clk clock.Clock,
) (*Pool, error) {
	var pool *Pool
	connect := func() error {
		p, err := NewPool(ctx, url)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}
	if wait <= 0 {
		if err := connect(); err != nil {
			return nil, err
		}
		return pool, nil
	}
	err := retry.Call(retry.CallArgs{
		Func: connect,
		IsFatalError: func(err error) bool {
			return !IsUnavailable(err)
		},
		NotifyFunc: func(err error, attempt int) {
			log.Debug(
				ctx, "server is not available yet",
				slog.Int("attempt", attempt), log.Err("err", err),
			)
		},
		Attempts:    -1,
		Delay:       100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		BackoffFunc: retry.DoubleDelay,
		MaxDuration: wait,
		Clock:       clk,
		Stop:        ctx.Done(),
	})
	if err != nil {
		if retry.IsDurationExceeded(err) {
			return nil, fmt.Errorf(
				"server is unavailable after %v: %w",
				wait, retry.LastError(err),
			)
		}
		return nil, retry.LastError(err)
	}
	return pool, nil
}

// Connector opens administrative connections to local servers.
type Connector struct {
	clock clock.Clock
}

var _ repo.Connector = (*Connector)(nil)

// NewConnector creates a Connector. A nil clk selects the wall clock.
func NewConnector(clk clock.Clock) *Connector {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Connector{clock: clk}
}

// Connect implements repo.Connector.
func (c *Connector) Connect(
	ctx context.Context, p model.ConnParams, wait time.Duration,
) (repo.AdminConn, error) {
	pool, err := WaitPool(ctx, DSN(p), wait, c.clock)
	if err != nil {
		return nil, err
	}
	return &AdminConn{params: p, pool: pool, clock: c.clock}, nil
}
