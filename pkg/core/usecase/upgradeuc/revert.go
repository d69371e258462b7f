// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package upgradeuc

import (
	"context"
	"fmt"

	"github.com/momeni/dbinst/pkg/core/cerr"
	"github.com/momeni/dbinst/pkg/core/log"
	"github.com/momeni/dbinst/pkg/core/model"
)

// RevertReport describes a completed revert.
type RevertReport struct {
	Instance string
	Version  model.Version
	Backup   model.BackupMeta
	Warnings []error
}

// Revert undoes an incomplete upgrade of the name instance by moving
// its backup directory back in place. The instance server is stopped
// beforehand and restarted afterwards. Failing to stop the server or
// to register its service is reported as a warning. Once the marker is
// checked, canceling ctx no longer interrupts the revert.
func (uc *UseCase) Revert(
	ctx context.Context, name string, ignoreMarker bool,
) (*RevertReport, error) {
	paths, err := uc.registry.Paths(name)
	if err != nil {
		return nil, fmt.Errorf("instance %q paths: %w", name, err)
	}
	if !ignoreMarker {
		if ok, err := pathExists(paths.UpgradeMarker); err != nil {
			return nil, fmt.Errorf("checking upgrade marker: %w", err)
		} else if !ok {
			return nil, cerr.Conflict(ErrNoUpgradeInProgress)
		}
	}
	ctx = context.WithoutCancel(ctx)
	rr := &RevertReport{Instance: name}
	if err := uc.services.Stop(ctx, name); err != nil {
		log.Warn(
			ctx, "cannot stop instance before revert",
			log.Instance(name), log.Err("err", err),
		)
		rr.Warnings = append(rr.Warnings, fmt.Errorf("stop: %w", err))
	}
	bmeta, err := uc.backups.Revert(ctx, name, paths)
	if err != nil {
		return nil, err
	}
	rr.Backup = *bmeta
	inst, err := uc.registry.Read(ctx, name)
	if err != nil {
		return rr, fmt.Errorf("reading reverted instance: %w", err)
	}
	rr.Version, _ = inst.Version()
	if err := uc.services.Register(ctx, inst); err != nil {
		log.Warn(
			ctx, "cannot register instance service",
			log.Instance(name), log.Err("err", err),
		)
		rr.Warnings = append(rr.Warnings, fmt.Errorf("register service: %w", err))
	}
	if err := uc.services.Restart(ctx, inst); err != nil {
		return rr, fmt.Errorf("restarting reverted instance: %w", err)
	}
	return rr, nil
}

// DiscardBackup removes the backup directory which is preserved after
// a successful incompatible upgrade.
func (uc *UseCase) DiscardBackup(ctx context.Context, name string) error {
	paths, err := uc.registry.Paths(name)
	if err != nil {
		return fmt.Errorf("instance %q paths: %w", name, err)
	}
	return uc.backups.Discard(ctx, name, paths)
}
