// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package upgradeuc

import (
	"context"
	"errors"
	"fmt"

	"github.com/momeni/dbinst/pkg/core/cerr"
	"github.com/momeni/dbinst/pkg/core/log"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/momeni/dbinst/pkg/core/repo"
)

// ConfirmFunc is asked before a cloud instance is upgraded to target.
// Returning false cancels the upgrade.
type ConfirmFunc func(target model.Version) (bool, error)

// CloudUseCase represents the cloud instances upgrade use case.
type CloudUseCase struct {
	client repo.CloudClient
}

// NewCloud instantiates a cloud upgrade use case.
func NewCloud(client repo.CloudClient) (*CloudUseCase, error) {
	if client == nil {
		return nil, errors.New("cloud client is missing")
	}
	return &CloudUseCase{client: client}, nil
}

// CloudQuery converts opts to a version query, defaulting to the
// latest stable version.
func CloudQuery(opts model.QueryOptions) (model.VersionQuery, error) {
	q, _, err := model.FromOptions(opts, func() (model.VersionQuery, error) {
		return model.StableQuery(), nil
	})
	if err != nil {
		return q, cerr.BadRequest(err)
	}
	return q, nil
}

// UpgradeCloud upgrades the org/name cloud instance to the version
// which is resolved for q. If that version is not newer and force is
// not set, nothing is changed. Otherwise, confirm decides whether
// exactly one upgrade request is sent. The control plane owns the
// retries of the actual upgrade.
func (cuc *CloudUseCase) UpgradeCloud(
	ctx context.Context,
	org, name string,
	q model.VersionQuery,
	force bool,
	confirm ConfirmFunc,
) (*model.UpgradeResult, error) {
	inst, err := cuc.client.FindInstance(ctx, org, name)
	if err != nil {
		return nil, fmt.Errorf("finding cloud instance: %w", err)
	}
	if inst == nil {
		return nil, cerr.NotFound(
			fmt.Errorf("cloud instance %s/%s not found", org, name),
		)
	}
	target, err := cuc.client.ResolveVersion(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("resolving %s version: %w", q, err)
	}
	res := &model.UpgradeResult{
		Action:           model.ActionNone,
		PriorVersion:     inst.Version,
		RequestedVersion: target,
	}
	if IsNoop(inst.Version, target, force) {
		return res, nil
	}
	ok, err := confirm(target)
	if err != nil {
		return nil, err
	}
	if !ok {
		res.Action = model.ActionCancelled
		return res, nil
	}
	err = cuc.client.UpgradeInstance(ctx, model.CloudUpgradeRequest{
		Org: org, Name: name, Version: target, Force: force,
	})
	if err != nil {
		return nil, fmt.Errorf("upgrading %s: %w", inst.FullName(), err)
	}
	log.Info(
		ctx, "cloud instance upgrade is requested",
		log.Instance(inst.FullName()),
		log.Valuer("version", target),
	)
	res.Action = model.ActionUpgraded
	return res, nil
}
