// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package repo

import (
	"context"
	"time"

	"github.com/momeni/dbinst/pkg/core/model"
)

// Connector opens administrative connections to local servers.
type Connector interface {
	// Connect connects using p. If wait is positive, unavailability
	// of the server (e.g., while it is starting) is retried until the
	// wait duration elapses.
	Connect(ctx context.Context, p model.ConnParams, wait time.Duration) (
		AdminConn, error,
	)
}

// AdminConn is an administrative connection which can transfer the
// whole content of a server as a logical dump directory. The format of
// the dump directory is owned by the implementation.
type AdminConn interface {
	// DumpAll writes a dump of all databases into the dst directory
	// which must not exist beforehand. Roles passwords are included
	// only if includeSecrets is true.
	DumpAll(ctx context.Context, dst string, includeSecrets bool) error

	// RestoreAll restores the dump of src directory into an empty
	// server.
	RestoreAll(ctx context.Context, src string) error

	Close() error
}
