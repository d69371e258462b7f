// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package upgradeuc

import "github.com/momeni/dbinst/pkg/core/model"

// IsNoop reports whether upgrading from current to target should be
// skipped because target is not newer and force was not requested.
func IsNoop(current, target model.Version, force bool) bool {
	return !force && target.Compare(current) <= 0
}

// Classify selects the upgrade path from current to target.
// The dump and restore path is used if forceDumpRestore is set, if
// target cannot use the current data directory, or if force was used
// together with a version selecting option. The last case covers the
// forced reinstallation of the same version, which should still
// exercise the full migration.
func Classify(
	current, target model.Version,
	force, versionOption, forceDumpRestore bool,
) model.UpgradePath {
	if forceDumpRestore || !target.IsCompatible(current) ||
		(force && versionOption) {
		return model.IncompatiblePath
	}
	return model.CompatiblePath
}
