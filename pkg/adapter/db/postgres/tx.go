// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package postgres

import (
	"context"

	"github.com/momeni/dbinst/pkg/core/repo"
	"gorm.io/gorm"
)

// Tx is a transaction which is opened by Conn.Tx.
// The restore operation creates the schema objects of each database in
// one transaction, so a failed restore does not leave half of a table
// definition behind. Tx is unsafe for concurrent use.
type Tx struct {
	*gorm.DB
}

var _ repo.Tx = (*Tx)(nil)

// Exec runs sql with args and returns the number of affected rows.
// Without args, sql may contain several semicolon separated DDL
// statements, as used for restoring schema objects.
func (tx *Tx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tt := tx.DB.WithContext(ctx).Exec(sql, args...)
	if err := tt.Error; err != nil {
		return 0, err
	}
	return tt.RowsAffected, nil
}

// Query runs one sql statement with args. Rows must be closed before
// the transaction is used again.
func (tx *Tx) Query(ctx context.Context, sql string, args ...any) (repo.Rows, error) {
	rows, err := tx.DB.WithContext(ctx).Raw(sql, args...).Rows()
	return rowsAdapter{rows}, err
}

func (tx *Tx) IsTx() {
}

// GORM returns the embedded *gorm.DB bound to ctx.
func (tx *Tx) GORM(ctx context.Context) *gorm.DB {
	return tx.DB.WithContext(ctx)
}
