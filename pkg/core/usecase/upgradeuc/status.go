// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package upgradeuc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/momeni/dbinst/pkg/core/cerr"
	"github.com/momeni/dbinst/pkg/core/model"
)

// Status reports the upgrade related state of the name instance.
// While an upgrade is incomplete, the instance metadata is read from
// the backup directory if the data directory has none.
func (uc *UseCase) Status(
	ctx context.Context, name string,
) (*model.InstanceStatus, error) {
	paths, err := uc.registry.Paths(name)
	if err != nil {
		return nil, fmt.Errorf("instance %q paths: %w", name, err)
	}
	st := &model.InstanceStatus{Paths: paths}
	if st.DataDirExists, err = pathExists(paths.DataDir); err != nil {
		return nil, err
	}
	var um model.UpgradeMeta
	if ok, err := uc.readOptional(paths.UpgradeMarker, "upgrade marker", &um); err != nil {
		return nil, err
	} else if ok {
		st.Marker = &um
	}
	var bm model.BackupMeta
	bpath := filepath.Join(paths.BackupDir, model.BackupMetaFile)
	if ok, err := uc.readOptional(bpath, "backup metadata", &bm); err != nil {
		return nil, err
	} else if ok {
		st.Backup = &bm
	}
	inst, err := uc.registry.Read(ctx, name)
	switch {
	case err == nil:
		st.Instance = *inst
	case st.Marker != nil:
		ipath := filepath.Join(paths.BackupDir, model.InstanceInfoFile)
		ok, err := uc.readOptional(ipath, "instance metadata", &st.Instance)
		if err != nil {
			return nil, err
		}
		if !ok {
			st.Instance.Name = name
		}
	case errors.Is(err, fs.ErrNotExist):
		return nil, cerr.NotFound(fmt.Errorf("instance %q: %w", name, err))
	default:
		return nil, fmt.Errorf("reading instance %q: %w", name, err)
	}
	if uc.projects != nil {
		st.Projects, err = uc.projects.ProjectsUsing(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("finding projects of %q: %w", name, err)
		}
	}
	return st, nil
}

// List reports the status of all registered instances, sorted by name.
func (uc *UseCase) List(ctx context.Context) ([]model.InstanceStatus, error) {
	names, err := uc.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing instances: %w", err)
	}
	sts := make([]model.InstanceStatus, 0, len(names))
	for _, name := range names {
		st, err := uc.Status(ctx, name)
		if err != nil {
			return nil, err
		}
		sts = append(sts, *st)
	}
	return sts, nil
}

func (uc *UseCase) readOptional(path, desc string, v any) (bool, error) {
	err := uc.meta.ReadJSON(path, desc, v)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
