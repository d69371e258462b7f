// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/momeni/dbinst/pkg/core/repo"
	"gorm.io/gorm"
)

// Conn is a dedicated connection which is taken from a Pool.
type Conn struct {
	*gorm.DB
}

var _ repo.Conn = (*Conn)(nil)

type TxHandler = repo.TxHandler

// Tx runs f in a transaction which is committed if f returns nil and
// is rolled back otherwise (or if f panics).
func (c *Conn) Tx(ctx context.Context, f TxHandler) (err error) {
	tx := c.DB.WithContext(ctx).Begin()
	if err = tx.Error; err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			err = tx.Rollback().Error
			if err == nil {
				err = fmt.Errorf("panicked: %v", r)
				return
			}
			err = fmt.Errorf("panicked: %v, rollback: %w", r, err)
			return
		}
		if err != nil {
			if err2 := tx.Rollback().Error; err2 != nil {
				err = fmt.Errorf("handler: %w, rollback: %w", err, err2)
				return
			}
			err = fmt.Errorf("handler: %w", err)
			return
		}
		err = tx.Commit().Error
		if err != nil {
			err = fmt.Errorf("commit: %w", err)
		}
	}()
	tt := &Tx{DB: tx}
	return f(ctx, tt)
}

func (c *Conn) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tt := c.DB.WithContext(ctx).Exec(sql, args...)
	if err := tt.Error; err != nil {
		return 0, err
	}
	return tt.RowsAffected, nil
}

func (c *Conn) Query(ctx context.Context, sql string, args ...any) (repo.Rows, error) {
	rows, err := c.DB.WithContext(ctx).Raw(sql, args...).Rows()
	return rowsAdapter{rows}, err
}

func (c *Conn) IsConn() {
}

// GORM returns the embedded *gorm.DB bound to ctx.
func (c *Conn) GORM(ctx context.Context) *gorm.DB {
	return c.DB.WithContext(ctx)
}

// Raw runs f with the pgx connection which backs c. It gives access
// to the protocol level features, such as COPY, which are not exposed
// through database/sql. The pgx connection must not be used after f
// returns.
func (c *Conn) Raw(f func(pc *pgx.Conn) error) error {
	sc, ok := c.DB.Statement.ConnPool.(*sql.Conn)
	if !ok {
		return fmt.Errorf(
			"not a dedicated connection: %T", c.DB.Statement.ConnPool,
		)
	}
	return sc.Raw(func(driverConn any) error {
		dc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection: %T", driverConn)
		}
		return f(dc.Conn())
	})
}
