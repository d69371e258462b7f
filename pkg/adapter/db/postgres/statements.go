// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package postgres

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

func ident(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}

func literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func flag(on bool, name string) string {
	if on {
		return name
	}
	return "NO" + name
}

func roleOptions(r Role, withPassword bool) string {
	opts := []string{
		flag(r.Superuser, "SUPERUSER"),
		flag(r.Inherit, "INHERIT"),
		flag(r.CreateRole, "CREATEROLE"),
		flag(r.CreateDB, "CREATEDB"),
		flag(r.Login, "LOGIN"),
		flag(r.Replication, "REPLICATION"),
		flag(r.BypassRLS, "BYPASSRLS"),
		fmt.Sprintf("CONNECTION LIMIT %d", r.ConnLimit),
	}
	if withPassword && r.Password != "" {
		opts = append(opts, "PASSWORD "+literal(r.Password))
	}
	return strings.Join(opts, " ")
}

// restoreGlobals returns the statements which recreate the roles,
// memberships, and databases of g on a server whose current user is
// named current and already has the given roles and databases.
func restoreGlobals(
	g *Globals, current string, roles, dbs map[string]bool,
) []string {
	var stmts []string
	for _, r := range g.Roles {
		switch {
		case r.Name == current:
			continue
		case roles[r.Name]:
			stmts = append(stmts, fmt.Sprintf(
				"ALTER ROLE %s WITH %s", ident(r.Name), roleOptions(r, true),
			))
		default:
			stmts = append(stmts, fmt.Sprintf(
				"CREATE ROLE %s WITH %s", ident(r.Name), roleOptions(r, true),
			))
		}
	}
	for _, m := range g.Memberships {
		s := fmt.Sprintf("GRANT %s TO %s", ident(m.Role), ident(m.Member))
		if m.AdminOption {
			s += " WITH ADMIN OPTION"
		}
		stmts = append(stmts, s)
	}
	for _, db := range g.Databases {
		if dbs[db.Name] {
			stmts = append(stmts, fmt.Sprintf(
				"ALTER DATABASE %s OWNER TO %s", ident(db.Name), ident(db.Owner),
			))
			continue
		}
		stmts = append(stmts, fmt.Sprintf(
			"CREATE DATABASE %s OWNER %s ENCODING %s TEMPLATE template0",
			ident(db.Name), ident(db.Owner), literal(db.Encoding),
		))
	}
	return stmts
}

func columnDef(c Column) string {
	var b strings.Builder
	b.WriteString(ident(c.Name))
	b.WriteString(" ")
	b.WriteString(c.Type)
	switch {
	case c.Generated == "s" && c.Default != nil:
		fmt.Fprintf(&b, " GENERATED ALWAYS AS (%s) STORED", *c.Default)
	case c.Identity == "a":
		b.WriteString(" GENERATED ALWAYS AS IDENTITY")
	case c.Identity == "d":
		b.WriteString(" GENERATED BY DEFAULT AS IDENTITY")
	case c.Default != nil:
		b.WriteString(" DEFAULT ")
		b.WriteString(*c.Default)
	}
	if c.NotNull {
		b.WriteString(" NOT NULL")
	}
	return b.String()
}

// createStatements returns the statements which create the objects of
// m that must exist before the table data is copied in.
func createStatements(m *Manifest) []string {
	var stmts []string
	for _, s := range m.Schemas {
		stmts = append(stmts,
			fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", ident(s.Name)),
			fmt.Sprintf("ALTER SCHEMA %s OWNER TO %s", ident(s.Name), ident(s.Owner)),
		)
	}
	for _, e := range m.Extensions {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE EXTENSION IF NOT EXISTS %s SCHEMA %s",
			ident(e.Name), ident(e.Schema),
		))
	}
	for _, s := range m.Sequences {
		cycle := "NO CYCLE"
		if s.Cycle {
			cycle = "CYCLE"
		}
		name := ident(s.Schema, s.Name)
		stmts = append(stmts,
			fmt.Sprintf(
				"CREATE SEQUENCE %s AS %s INCREMENT BY %d MINVALUE %d "+
					"MAXVALUE %d START WITH %d %s",
				name, s.DataType, s.Increment, s.Min, s.Max, s.Start, cycle,
			),
			fmt.Sprintf("ALTER SEQUENCE %s OWNER TO %s", name, ident(s.Owner)),
		)
	}
	for _, t := range m.Tables {
		cols := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			cols = append(cols, columnDef(c))
		}
		name := ident(t.Schema, t.Name)
		stmts = append(stmts,
			fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(cols, ", ")),
			fmt.Sprintf("ALTER TABLE %s OWNER TO %s", name, ident(t.Owner)),
		)
	}
	return stmts
}

// finishStatements returns the statements which complete m after its
// data is loaded. Foreign keys come after all other constraints, so
// the referenced keys exist already.
func finishStatements(m *Manifest) []string {
	var stmts, fks []string
	for _, t := range m.Tables {
		name := ident(t.Schema, t.Name)
		for _, c := range t.Constraints {
			s := fmt.Sprintf(
				"ALTER TABLE %s ADD CONSTRAINT %s %s",
				name, ident(c.Name), c.Definition,
			)
			if c.Kind == "f" {
				fks = append(fks, s)
				continue
			}
			stmts = append(stmts, s)
		}
	}
	stmts = append(stmts, fks...)
	for _, i := range m.Indexes {
		stmts = append(stmts, i.Definition)
	}
	for _, s := range m.Sequences {
		if s.LastValue == nil {
			continue
		}
		stmts = append(stmts, fmt.Sprintf(
			"SELECT setval(%s, %d, true)",
			literal(ident(s.Schema, s.Name)), *s.LastValue,
		))
	}
	for _, t := range m.Tables {
		name := ident(t.Schema, t.Name)
		for _, c := range t.Columns {
			if c.Identity == "" {
				continue
			}
			stmts = append(stmts, fmt.Sprintf(
				"SELECT setval(pg_get_serial_sequence(%s, %s), "+
					"COALESCE(MAX(%s), 0) + 1, false) FROM %s",
				literal(name), literal(c.Name), ident(c.Name), name,
			))
		}
	}
	for _, v := range m.Views {
		name := ident(v.Schema, v.Name)
		stmts = append(stmts,
			fmt.Sprintf("CREATE VIEW %s AS %s", name, strings.TrimSuffix(
				strings.TrimSpace(v.Definition), ";",
			)),
			fmt.Sprintf("ALTER VIEW %s OWNER TO %s", name, ident(v.Owner)),
		)
	}
	return stmts
}

// copyColumns returns the quoted names of the columns which are kept
// in the data file of t.
func copyColumns(t *Table) string {
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Generated != "" {
			continue
		}
		cols = append(cols, ident(c.Name))
	}
	return strings.Join(cols, ", ")
}
