// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package postgres implements the administrative protocol of the
// managed PostgreSQL servers. It provides a repo.Connector which waits
// for a starting server to accept connections, and a repo.AdminConn
// which can take a logical dump of a whole server (roles, databases,
// and their schemas and data) and restore it into a fresh server of
// another major version.
//
// Connections are managed by GORM over the pgx driver. Catalog queries
// are run through GORM, while table data is moved with the COPY
// protocol of the underlying pgx connections.
package postgres

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/momeni/dbinst/pkg/core/model"
)

// DSN returns a postgresql URL for p. A Host which is an absolute path
// is taken as a unix socket directory, and TLS is disabled for it.
func DSN(p model.ConnParams) string {
	q := url.Values{}
	q.Set("host", p.Host)
	q.Set("port", strconv.Itoa(p.Port))
	if strings.HasPrefix(p.Host, "/") {
		q.Set("sslmode", "disable")
	} else {
		q.Set("sslmode", "prefer")
	}
	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(p.User, p.Password),
		Path:     "/" + p.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}
