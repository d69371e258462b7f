// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package upgradeuc

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/momeni/dbinst/pkg/core/log"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/momeni/dbinst/pkg/core/repo"
)

// dumpAndStop dumps the instance while it is still running the old
// server. If the service manager cannot start it, the server is
// spawned directly for the duration of the dump. Otherwise, the
// service is stopped after a successful dump.
func (uc *UseCase) dumpAndStop(ctx context.Context, up *upgrade) error {
	inst := up.inst
	log.Info(ctx, "ensuring instance is started", log.Instance(inst.Name))
	if err := uc.services.Start(ctx, inst); err != nil {
		log.Warn(
			ctx, "cannot start service, starting the server manually",
			log.Instance(inst.Name), log.Err("err", err),
		)
		if err := uc.services.EnsureRunstateDir(ctx, inst.Name); err != nil {
			return fmt.Errorf("preparing runstate dir: %w", err)
		}
		return uc.runner.RunWhile(
			ctx, inst, repo.NormalMode,
			func(ctx context.Context) error {
				return uc.dumpInstance(ctx, inst, up.paths.DumpPath)
			},
		)
	}
	if err := uc.dumpInstance(ctx, inst, up.paths.DumpPath); err != nil {
		return err
	}
	log.Info(
		ctx, "stopping instance before executable upgrade",
		log.Instance(inst.Name),
	)
	if err := uc.services.Stop(ctx, inst.Name); err != nil {
		return fmt.Errorf("stopping instance: %w", err)
	}
	return nil
}

func (uc *UseCase) dumpInstance(
	ctx context.Context, inst *model.InstanceInfo, dst string,
) error {
	if exists, err := pathExists(dst); err != nil {
		return err
	} else if exists {
		log.Info(ctx, "removing old dump", log.Path("dump", dst))
		if err := os.RemoveAll(dst); err != nil {
			return fmt.Errorf("removing old dump: %w", err)
		}
	}
	conn, err := uc.connect(ctx, inst, uc.dumpWait)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info(
		ctx, "dumping instance",
		log.Instance(inst.Name), log.Path("dump", dst),
	)
	if err := conn.DumpAll(ctx, dst, true); err != nil {
		return fmt.Errorf("dumping all databases: %w", err)
	}
	return nil
}

// restore runs the new server in bootstrap mode on the empty data
// directory and restores the dump into it.
func (uc *UseCase) restore(ctx context.Context, up *upgrade) error {
	inst := up.inst
	if err := uc.services.EnsureRunstateDir(ctx, inst.Name); err != nil {
		return fmt.Errorf("preparing runstate dir: %w", err)
	}
	return uc.runner.RunWhile(
		ctx, inst, repo.BootstrapMode,
		func(ctx context.Context) error {
			conn, err := uc.connect(ctx, inst, uc.restoreWait)
			if err != nil {
				return err
			}
			defer conn.Close()
			log.Info(
				ctx, "restoring instance",
				log.Instance(inst.Name),
				log.Path("dump", up.paths.DumpPath),
			)
			if err := conn.RestoreAll(ctx, up.paths.DumpPath); err != nil {
				return fmt.Errorf("restoring all databases: %w", err)
			}
			return nil
		},
	)
}

func (uc *UseCase) connect(
	ctx context.Context, inst *model.InstanceInfo, wait time.Duration,
) (repo.AdminConn, error) {
	params, err := uc.registry.AdminConnParams(ctx, inst)
	if err != nil {
		return nil, fmt.Errorf("admin connection parameters: %w", err)
	}
	conn, err := uc.connector.Connect(ctx, params, wait)
	if err != nil {
		return nil, fmt.Errorf("connecting to %q: %w", inst.Name, err)
	}
	return conn, nil
}
