// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package postgres

// userNamespaces filters the system schemas out.
const userNamespaces = `n.nspname NOT IN ('pg_catalog', 'information_schema')
	AND n.nspname NOT LIKE 'pg\_toast%'
	AND n.nspname NOT LIKE 'pg\_temp\_%'`

// notFromExtension filters the relations which are created by
// extensions, since they are recreated by CREATE EXTENSION.
const notFromExtension = `NOT EXISTS (
	SELECT 1 FROM pg_depend d
	WHERE d.classid = 'pg_class'::regclass AND d.objid = c.oid
		AND d.deptype = 'e'
)`

const (
	serverVersionQuery = `SELECT current_setting('server_version')`

	rolesQuery = `SELECT rolname AS name, rolsuper AS superuser,
	rolinherit AS inherit, rolcreaterole AS create_role,
	rolcreatedb AS create_db, rolcanlogin AS login,
	rolreplication AS replication, rolbypassrls AS bypass_rls,
	rolconnlimit AS conn_limit, COALESCE(rolpassword, '') AS password
FROM pg_authid
WHERE rolname NOT LIKE 'pg\_%'
ORDER BY rolname`

	membershipsQuery = `SELECT r.rolname AS role, m.rolname AS member,
	a.admin_option
FROM pg_auth_members a
	JOIN pg_roles r ON r.oid = a.roleid
	JOIN pg_roles m ON m.oid = a.member
WHERE r.rolname NOT LIKE 'pg\_%'
ORDER BY 1, 2`

	databasesQuery = `SELECT datname AS name,
	pg_get_userbyid(datdba) AS owner,
	pg_encoding_to_char(encoding) AS encoding
FROM pg_database
WHERE datallowconn AND NOT datistemplate
ORDER BY datname`

	extensionsQuery = `SELECT e.extname AS name, n.nspname AS schema
FROM pg_extension e JOIN pg_namespace n ON n.oid = e.extnamespace
WHERE e.extname <> 'plpgsql'
ORDER BY e.oid`

	schemasQuery = `SELECT n.nspname AS name,
	pg_get_userbyid(n.nspowner) AS owner
FROM pg_namespace n
WHERE ` + userNamespaces + `
ORDER BY n.nspname`

	// Identity sequences are recreated by their columns.
	sequencesQuery = `SELECT s.schemaname AS schema, s.sequencename AS name,
	s.sequenceowner AS owner, s.data_type::text AS data_type,
	s.start_value, s.increment_by, s.min_value, s.max_value,
	s.cycle, s.last_value
FROM pg_sequences s
WHERE NOT EXISTS (
	SELECT 1 FROM pg_depend d
	WHERE d.objid = (quote_ident(s.schemaname) || '.' ||
		quote_ident(s.sequencename))::regclass
		AND d.deptype = 'i'
)
ORDER BY 1, 2`

	tablesQuery = `SELECT c.oid::int8 AS oid, n.nspname AS schema,
	c.relname AS name, pg_get_userbyid(c.relowner) AS owner
FROM pg_class c JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind = 'r' AND ` + userNamespaces + `
	AND ` + notFromExtension + `
ORDER BY n.nspname, c.relname`

	columnsQuery = `SELECT a.attname AS name,
	format_type(a.atttypid, a.atttypmod) AS type,
	a.attnotnull AS not_null,
	pg_get_expr(d.adbin, d.adrelid) AS default_expr,
	a.attidentity::text AS identity,
	a.attgenerated::text AS generated
FROM pg_attribute a
	LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
WHERE a.attrelid = ? AND a.attnum > 0 AND NOT a.attisdropped
ORDER BY a.attnum`

	// NOT NULL constraints are part of the columns definitions.
	constraintsQuery = `SELECT conname AS name, contype::text AS kind,
	pg_get_constraintdef(oid) AS definition
FROM pg_constraint
WHERE conrelid = ? AND contype IN ('p', 'u', 'c', 'f', 'x')
ORDER BY conname`

	indexesQuery = `SELECT pg_get_indexdef(i.indexrelid) AS definition
FROM pg_index i
	JOIN pg_class c ON c.oid = i.indrelid
	JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind = 'r' AND ` + userNamespaces + `
	AND ` + notFromExtension + `
	AND NOT EXISTS (
		SELECT 1 FROM pg_constraint k WHERE k.conindid = i.indexrelid
	)
ORDER BY i.indexrelid`

	viewsQuery = `SELECT n.nspname AS schema, c.relname AS name,
	pg_get_userbyid(c.relowner) AS owner,
	pg_get_viewdef(c.oid) AS definition
FROM pg_class c JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind = 'v' AND ` + userNamespaces + `
	AND ` + notFromExtension + `
ORDER BY c.oid`
)
