// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/momeni/dbinst/pkg/core/repo"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Pool is a connection pool to one database of a server.
type Pool struct {
	*gorm.DB
}

var _ repo.Pool = (*Pool)(nil)

// NewPool opens a pool for the given postgresql URL and checks that
// a connection can be established.
func NewPool(ctx context.Context, url string) (*Pool, error) {
	gdb, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger: NewLogger(200 * time.Millisecond),
	})
	if err != nil {
		return nil, fmt.Errorf("gorm.Open: %w", err)
	}
	pool := &Pool{DB: gdb}
	err = pool.Conn(ctx, NoOpConnHandler)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("testing connection: %w", err)
	}
	return pool, nil
}

type ConnHandler = repo.ConnHandler

// NoOpConnHandler does nothing. It is used for testing connections.
func NoOpConnHandler(context.Context, repo.Conn) error {
	return nil
}

// Conn runs f with a dedicated connection of the pool which is
// returned to the pool after f returns.
func (p *Pool) Conn(ctx context.Context, f ConnHandler) error {
	return p.DB.WithContext(ctx).Connection(func(c *gorm.DB) error {
		cc := &Conn{DB: c}
		return f(ctx, cc)
	})
}

// Close closes all connections of the pool.
func (p *Pool) Close() error {
	db, err := p.DB.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
