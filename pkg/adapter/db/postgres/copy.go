// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package postgres

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5"
	"github.com/momeni/dbinst/pkg/core/log"
)

// copyOut writes the rows of t into the i-th data file of dir and
// records the file name and rows count in t.
func copyOut(ctx context.Context, c *Conn, t *Table, dir string, i int) error {
	t.DataFile = fmt.Sprintf("%04d.copy", i)
	path := filepath.Join(dir, t.DataFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("creating %q: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	sql := fmt.Sprintf(
		"COPY %s (%s) TO STDOUT", ident(t.Schema, t.Name), copyColumns(t),
	)
	err = c.Raw(func(pc *pgx.Conn) error {
		tag, err := pc.PgConn().CopyTo(ctx, w, sql)
		if err != nil {
			return err
		}
		t.Rows = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("copying out %s.%s: %w", t.Schema, t.Name, err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %q: %w", path, err)
	}
	log.Debug(
		ctx, "table is dumped",
		slog.String("table", t.Schema+"."+t.Name),
		slog.Int64("rows", t.Rows),
	)
	return nil
}

// copyIn loads the data file of t from dir.
func copyIn(ctx context.Context, c *Conn, t *Table, dir string) error {
	if t.DataFile == "" {
		return nil
	}
	path := filepath.Join(dir, t.DataFile)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %q: %w", path, err)
	}
	defer f.Close()
	sql := fmt.Sprintf(
		"COPY %s (%s) FROM STDIN", ident(t.Schema, t.Name), copyColumns(t),
	)
	var n int64
	err = c.Raw(func(pc *pgx.Conn) error {
		tag, err := pc.PgConn().CopyFrom(ctx, bufio.NewReader(f), sql)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("copying in %s.%s: %w", t.Schema, t.Name, err)
	}
	if n != t.Rows {
		return fmt.Errorf(
			"copying in %s.%s: loaded %d rows, expected %d",
			t.Schema, t.Name, n, t.Rows,
		)
	}
	return nil
}
