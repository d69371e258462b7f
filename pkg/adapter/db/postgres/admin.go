// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/juju/clock"
	"github.com/momeni/dbinst/pkg/core/log"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/momeni/dbinst/pkg/core/repo"
)

// AdminConn is an administrative session with a server. It keeps a
// pool for the database of its connection parameters and opens short
// lived pools for the other databases while dumping or restoring them.
type AdminConn struct {
	params model.ConnParams
	pool   *Pool
	clock  clock.Clock
}

var _ repo.AdminConn = (*AdminConn)(nil)

// Params returns the connection parameters of a.
func (a *AdminConn) Params() model.ConnParams {
	return a.params
}

// Close closes the connections of a.
func (a *AdminConn) Close() error {
	return a.pool.Close()
}

func (a *AdminConn) openDB(ctx context.Context, name string) (*Pool, error) {
	p := a.params
	p.Database = name
	pool, err := WaitPool(ctx, DSN(p), 0, a.clock)
	if err != nil {
		return nil, fmt.Errorf("connecting to database %q: %w", name, err)
	}
	return pool, nil
}

// conn runs f with a dedicated connection of pool.
func conn(ctx context.Context, pool *Pool, f func(ctx context.Context, c *Conn) error) error {
	return pool.Conn(ctx, func(ctx context.Context, c repo.Conn) error {
		return f(ctx, c.(*Conn))
	})
}

// tx runs f in a transaction of c.
func tx(ctx context.Context, c *Conn, f func(ctx context.Context, t *Tx) error) error {
	return c.Tx(ctx, func(ctx context.Context, t repo.Tx) error {
		return f(ctx, t.(*Tx))
	})
}

// DumpAll writes a logical dump of the server into dst. The dump is
// first written into a sibling dst.partial directory and is renamed
// to dst when it is complete.
func (a *AdminConn) DumpAll(
	ctx context.Context, dst string, includeSecrets bool,
) error {
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("dump destination %q exists: %w", dst, fs.ErrExist)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	tmp := dst + ".partial"
	if err := os.RemoveAll(tmp); err != nil {
		return fmt.Errorf("removing %q: %w", tmp, err)
	}
	if err := os.MkdirAll(tmp, 0o700); err != nil {
		return fmt.Errorf("creating %q: %w", tmp, err)
	}
	g := &Globals{Format: formatV1}
	err := conn(ctx, a.pool, func(ctx context.Context, c *Conn) error {
		v, err := serverVersion(ctx, c)
		if err != nil {
			return err
		}
		g.ServerVersion = v
		if err := scan(ctx, c, &g.Roles, "roles", rolesQuery); err != nil {
			return err
		}
		err = scan(ctx, c, &g.Memberships, "memberships", membershipsQuery)
		if err != nil {
			return err
		}
		return scan(ctx, c, &g.Databases, "databases", databasesQuery)
	})
	if err != nil {
		return fmt.Errorf("dumping globals: %w", err)
	}
	if !includeSecrets {
		for i := range g.Roles {
			g.Roles[i].Password = ""
		}
	}
	for i := range g.Databases {
		db := &g.Databases[i]
		db.Dir = fmt.Sprintf("db%04d", i)
		if err := a.dumpDatabase(ctx, db.Name, filepath.Join(tmp, db.Dir)); err != nil {
			return fmt.Errorf("dumping database %q: %w", db.Name, err)
		}
	}
	if err := writeJSON(filepath.Join(tmp, globalsFile), g); err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("os.Rename(%q, %q): %w", tmp, dst, err)
	}
	log.Info(
		ctx, "server is dumped",
		slog.String("server_version", g.ServerVersion),
		slog.Int("roles", len(g.Roles)),
		slog.Int("databases", len(g.Databases)),
	)
	return nil
}

func serverVersion(ctx context.Context, c *Conn) (string, error) {
	rows, err := c.Query(ctx, serverVersionQuery)
	if err != nil {
		return "", fmt.Errorf("querying server version: %w", err)
	}
	defer rows.Close()
	var v string
	if rows.Next() {
		if err := rows.Scan(&v); err != nil {
			return "", fmt.Errorf("scanning server version: %w", err)
		}
	}
	return v, rows.Err()
}

// RestoreAll restores the dump of src. Roles which exist already (such
// as the connected administrator) are altered instead of created, and
// the password of the connected role is left unchanged.
func (a *AdminConn) RestoreAll(ctx context.Context, src string) error {
	g := &Globals{}
	if err := readJSON(filepath.Join(src, globalsFile), g); err != nil {
		return err
	}
	if g.Format != formatV1 {
		return fmt.Errorf("unsupported dump format: %d", g.Format)
	}
	err := conn(ctx, a.pool, func(ctx context.Context, c *Conn) error {
		stmts, err := globalStatements(ctx, c, g)
		if err != nil {
			return err
		}
		// CREATE DATABASE cannot run in a transaction block.
		return execAll(ctx, c, stmts...)
	})
	if err != nil {
		return fmt.Errorf("restoring globals: %w", err)
	}
	for _, db := range g.Databases {
		if err := a.restoreDatabase(ctx, db.Name, filepath.Join(src, db.Dir)); err != nil {
			return fmt.Errorf("restoring database %q: %w", db.Name, err)
		}
	}
	log.Info(
		ctx, "dump is restored",
		slog.String("source_version", g.ServerVersion),
		slog.Int("databases", len(g.Databases)),
	)
	return nil
}

type named struct {
	Name string `gorm:"column:name"`
}

func globalStatements(ctx context.Context, c *Conn, g *Globals) ([]string, error) {
	var me []named
	if err := scan(ctx, c, &me, "current user", `SELECT current_user AS name`); err != nil {
		return nil, err
	}
	var roles, dbs []named
	if err := scan(ctx, c, &roles, "roles", `SELECT rolname AS name FROM pg_roles`); err != nil {
		return nil, err
	}
	err := scan(ctx, c, &dbs, "databases", `SELECT datname AS name FROM pg_database`)
	if err != nil {
		return nil, err
	}
	current := ""
	if len(me) == 1 {
		current = me[0].Name
	}
	return restoreGlobals(g, current, nameSet(roles), nameSet(dbs)), nil
}

func nameSet(ns []named) map[string]bool {
	m := make(map[string]bool, len(ns))
	for _, n := range ns {
		m[n.Name] = true
	}
	return m
}

func (a *AdminConn) dumpDatabase(ctx context.Context, name, dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %q: %w", dir, err)
	}
	pool, err := a.openDB(ctx, name)
	if err != nil {
		return err
	}
	defer pool.Close()
	m := &Manifest{}
	err = conn(ctx, pool, func(ctx context.Context, c *Conn) error {
		return tx(ctx, c, func(ctx context.Context, t *Tx) error {
			_, err := t.Exec(ctx,
				"SET TRANSACTION ISOLATION LEVEL REPEATABLE READ, READ ONLY",
			)
			if err != nil {
				return fmt.Errorf("setting snapshot isolation: %w", err)
			}
			if err := readManifest(ctx, t, m); err != nil {
				return err
			}
			// COPY runs in the same session, so it observes the same
			// snapshot as the catalog queries of this transaction.
			for i := range m.Tables {
				if err := copyOut(ctx, c, &m.Tables[i], dir, i); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, manifestFile), m)
}

func readManifest(ctx context.Context, t *Tx, m *Manifest) error {
	if err := scan(ctx, t, &m.Extensions, "extensions", extensionsQuery); err != nil {
		return err
	}
	if err := scan(ctx, t, &m.Schemas, "schemas", schemasQuery); err != nil {
		return err
	}
	if err := scan(ctx, t, &m.Sequences, "sequences", sequencesQuery); err != nil {
		return err
	}
	if err := scan(ctx, t, &m.Tables, "tables", tablesQuery); err != nil {
		return err
	}
	for i := range m.Tables {
		tbl := &m.Tables[i]
		what := tbl.Schema + "." + tbl.Name
		err := scan(ctx, t, &tbl.Columns, what+" columns", columnsQuery, tbl.OID)
		if err != nil {
			return err
		}
		err = scan(ctx, t, &tbl.Constraints, what+" constraints", constraintsQuery, tbl.OID)
		if err != nil {
			return err
		}
	}
	if err := scan(ctx, t, &m.Indexes, "indexes", indexesQuery); err != nil {
		return err
	}
	return scan(ctx, t, &m.Views, "views", viewsQuery)
}

func (a *AdminConn) restoreDatabase(ctx context.Context, name, dir string) error {
	m := &Manifest{}
	if err := readJSON(filepath.Join(dir, manifestFile), m); err != nil {
		return err
	}
	pool, err := a.openDB(ctx, name)
	if err != nil {
		return err
	}
	defer pool.Close()
	return conn(ctx, pool, func(ctx context.Context, c *Conn) error {
		err := tx(ctx, c, func(ctx context.Context, t *Tx) error {
			return execAll(ctx, t, createStatements(m)...)
		})
		if err != nil {
			return fmt.Errorf("creating schema objects: %w", err)
		}
		for i := range m.Tables {
			if err := copyIn(ctx, c, &m.Tables[i], dir); err != nil {
				return err
			}
		}
		err = tx(ctx, c, func(ctx context.Context, t *Tx) error {
			return execAll(ctx, t, finishStatements(m)...)
		})
		if err != nil {
			return fmt.Errorf("finishing schema objects: %w", err)
		}
		return nil
	})
}
