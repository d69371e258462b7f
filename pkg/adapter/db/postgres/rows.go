// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package postgres

import (
	"database/sql"
	"fmt"
)

// rowsAdapter exposes *sql.Rows as repo.Rows.
type rowsAdapter struct {
	*sql.Rows
}

func (ra rowsAdapter) Close() {
	if ra.Rows != nil {
		// Err reports the close errors too
		_ = ra.Rows.Close()
	}
}

// Values scans the current row into a slice of driver values, one per
// result column.
func (ra rowsAdapter) Values() ([]any, error) {
	names, err := ra.Columns()
	if err != nil {
		return nil, fmt.Errorf("column-names: %w", err)
	}
	vals := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := ra.Scan(ptrs...); err != nil {
		return nil, err
	}
	return vals, nil
}
