// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package postgres

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// A dump directory has the following layout:
//
//	globals.json                 roles, memberships, and databases
//	<db>/manifest.json           schema objects of one database
//	<db>/<nnnn>.copy             COPY text data of one table
//
// Database directories are numbered (db0000, db0001, ...) since the
// database names are not restricted to portable file names.
const (
	globalsFile  = "globals.json"
	manifestFile = "manifest.json"
	formatV1     = 1
)

// Globals holds the cluster-wide objects of a dump.
type Globals struct {
	Format        int          `json:"format"`
	ServerVersion string       `json:"server_version"`
	Roles         []Role       `json:"roles"`
	Memberships   []Membership `json:"memberships"`
	Databases     []Database   `json:"databases"`
}

// Role is a dumped database role. Password holds the stored verifier
// and is empty unless secrets were asked to be dumped.
type Role struct {
	Name        string `json:"name" gorm:"column:name"`
	Superuser   bool   `json:"superuser" gorm:"column:superuser"`
	Inherit     bool   `json:"inherit" gorm:"column:inherit"`
	CreateRole  bool   `json:"create_role" gorm:"column:create_role"`
	CreateDB    bool   `json:"create_db" gorm:"column:create_db"`
	Login       bool   `json:"login" gorm:"column:login"`
	Replication bool   `json:"replication" gorm:"column:replication"`
	BypassRLS   bool   `json:"bypass_rls" gorm:"column:bypass_rls"`
	ConnLimit   int    `json:"conn_limit" gorm:"column:conn_limit"`
	Password    string `json:"password,omitempty" gorm:"column:password"`
}

// Membership grants Role to Member.
type Membership struct {
	Role        string `json:"role" gorm:"column:role"`
	Member      string `json:"member" gorm:"column:member"`
	AdminOption bool   `json:"admin_option" gorm:"column:admin_option"`
}

// Database is a dumped database and the directory of its contents.
type Database struct {
	Name     string `json:"name" gorm:"column:name"`
	Owner    string `json:"owner" gorm:"column:owner"`
	Encoding string `json:"encoding" gorm:"column:encoding"`
	Dir      string `json:"dir" gorm:"-"`
}

// Manifest lists the schema objects of one database in their creation
// order.
type Manifest struct {
	Extensions []Extension `json:"extensions"`
	Schemas    []Schema    `json:"schemas"`
	Sequences  []Sequence  `json:"sequences"`
	Tables     []Table     `json:"tables"`
	Indexes    []Index     `json:"indexes"`
	Views      []View      `json:"views"`
}

type Extension struct {
	Name   string `json:"name" gorm:"column:name"`
	Schema string `json:"schema" gorm:"column:schema"`
}

type Schema struct {
	Name  string `json:"name" gorm:"column:name"`
	Owner string `json:"owner" gorm:"column:owner"`
}

type Sequence struct {
	Schema    string `json:"schema" gorm:"column:schema"`
	Name      string `json:"name" gorm:"column:name"`
	Owner     string `json:"owner" gorm:"column:owner"`
	DataType  string `json:"data_type" gorm:"column:data_type"`
	Start     int64  `json:"start" gorm:"column:start_value"`
	Increment int64  `json:"increment" gorm:"column:increment_by"`
	Min       int64  `json:"min" gorm:"column:min_value"`
	Max       int64  `json:"max" gorm:"column:max_value"`
	Cycle     bool   `json:"cycle" gorm:"column:cycle"`
	LastValue *int64 `json:"last_value" gorm:"column:last_value"`
}

// Table is a dumped table. Its data is kept in the DataFile, in the
// COPY text format, with one field per non-generated column.
type Table struct {
	OID         int64        `json:"-" gorm:"column:oid"`
	Schema      string       `json:"schema" gorm:"column:schema"`
	Name        string       `json:"name" gorm:"column:name"`
	Owner       string       `json:"owner" gorm:"column:owner"`
	Columns     []Column     `json:"columns" gorm:"-"`
	Constraints []Constraint `json:"constraints" gorm:"-"`
	DataFile    string       `json:"data_file" gorm:"-"`
	Rows        int64        `json:"rows" gorm:"-"`
}

// Column is a dumped table column. Identity is "a" (always), "d" (by
// default), or empty. Generated is "s" for stored generated columns.
type Column struct {
	Name      string  `json:"name" gorm:"column:name"`
	Type      string  `json:"type" gorm:"column:type"`
	NotNull   bool    `json:"not_null" gorm:"column:not_null"`
	Default   *string `json:"default,omitempty" gorm:"column:default_expr"`
	Identity  string  `json:"identity,omitempty" gorm:"column:identity"`
	Generated string  `json:"generated,omitempty" gorm:"column:generated"`
}

// Constraint is a table constraint. Kind is the pg_constraint contype,
// e.g., "p" for primary keys and "f" for foreign keys.
type Constraint struct {
	Name       string `json:"name" gorm:"column:name"`
	Kind       string `json:"kind" gorm:"column:kind"`
	Definition string `json:"definition" gorm:"column:definition"`
}

type Index struct {
	Definition string `json:"definition" gorm:"column:definition"`
}

type View struct {
	Schema     string `json:"schema" gorm:"column:schema"`
	Name       string `json:"name" gorm:"column:name"`
	Owner      string `json:"owner" gorm:"column:owner"`
	Definition string `json:"definition" gorm:"column:definition"`
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("writing %q: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %q: %w", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decoding %q: %w", path, err)
	}
	return nil
}
