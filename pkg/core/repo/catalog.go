// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package repo defines the interfaces of collaborators which are used
// by the use cases layer. Adapters implement them and use cases accept
// them, so the upgrade logic never depends on a concrete registry,
// service manager, or database driver.
package repo

import (
	"context"

	"github.com/momeni/dbinst/pkg/core/model"
)

// Catalog lists the installable server packages.
type Catalog interface {
	// FindPackage returns the greatest package version which matches
	// q, or nil if nothing matches.
	FindPackage(ctx context.Context, q model.VersionQuery) (
		*model.PackageInfo, error,
	)
}

// Installer downloads, verifies, and unpacks server packages.
type Installer interface {
	Install(ctx context.Context, pkg *model.PackageInfo) (
		*model.InstallInfo, error,
	)
}
