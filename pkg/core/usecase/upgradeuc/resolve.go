// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package upgradeuc

import (
	"context"
	"fmt"

	"github.com/momeni/dbinst/pkg/core/cerr"
	"github.com/momeni/dbinst/pkg/core/model"
)

// Resolve converts opts to a version query and finds the best package
// for it. Without any version selecting option, the query tracks the
// major version of current. The returned boolean reports whether opts
// had a version selecting option.
func (uc *UseCase) Resolve(
	ctx context.Context, opts model.QueryOptions, current model.Version,
) (*model.PackageInfo, model.VersionQuery, bool, error) {
	q, versionOption, err := model.FromOptions(
		opts, func() (model.VersionQuery, error) {
			return model.QueryFromVersion(current), nil
		},
	)
	if err != nil {
		return nil, q, false, cerr.BadRequest(err)
	}
	pkg, err := uc.catalog.FindPackage(ctx, q)
	if err != nil {
		return nil, q, versionOption, fmt.Errorf("finding package: %w", err)
	}
	if pkg == nil {
		return nil, q, versionOption, &cerr.NoMatchingPackageError{Query: q}
	}
	return pkg, q, versionOption, nil
}
