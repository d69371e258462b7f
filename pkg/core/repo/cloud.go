// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package repo

import (
	"context"

	"github.com/momeni/dbinst/pkg/core/model"
)

// CloudClient talks to the cloud control plane.
type CloudClient interface {
	// FindInstance returns the org/name instance, or nil if it does
	// not exist.
	FindInstance(ctx context.Context, org, name string) (
		*model.CloudInstance, error,
	)

	// ResolveVersion returns the greatest version which is offered by
	// the control plane and matches q.
	ResolveVersion(ctx context.Context, q model.VersionQuery) (
		model.Version, error,
	)

	// UpgradeInstance requests an instance upgrade. The control plane
	// owns the durability of the upgrade afterwards.
	UpgradeInstance(ctx context.Context, req model.CloudUpgradeRequest) error
}
