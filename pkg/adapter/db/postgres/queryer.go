// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package postgres

import (
	"context"
	"fmt"

	"github.com/momeni/dbinst/pkg/core/repo"
	"gorm.io/gorm"
)

// Queryer is satisfied by connections and transactions alike, so the
// catalog reading helpers can run in either of them.
type Queryer interface {
	*Conn | *Tx
	repo.Queryer
	GORM(ctx context.Context) *gorm.DB
}

// scan runs a catalog query and stores its rows in dst, which must be
// a pointer to a slice of structs with gorm column tags.
func scan[Q Queryer](
	ctx context.Context, q Q, dst any, what, sql string, args ...any,
) error {
	if err := q.GORM(ctx).Raw(sql, args...).Scan(dst).Error; err != nil {
		return fmt.Errorf("querying %s: %w", what, err)
	}
	return nil
}

// execAll runs each statement in order and stops at the first error.
func execAll[Q Queryer](ctx context.Context, q Q, stmts ...string) error {
	for _, s := range stmts {
		if _, err := q.Exec(ctx, s); err != nil {
			return fmt.Errorf("executing %q: %w", s, err)
		}
	}
	return nil
}
