// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package upgradeuc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/momeni/dbinst/pkg/core/cerr"
	"github.com/momeni/dbinst/pkg/core/log"
	"github.com/momeni/dbinst/pkg/core/model"
)

// upgrade holds the state of one local upgrade while its steps run.
type upgrade struct {
	inst    *model.InstanceInfo
	pkg     *model.PackageInfo
	install *model.InstallInfo
	paths   model.Paths
	source  model.Version
}

// phase classifies the errors of a step. Steps which run after the
// data directory is moved aside belong to phaseRestore, so their
// errors require a manual revert.
type phase int

const (
	phasePrepare phase = iota
	phaseDump
	phaseBackup
	phaseRestore
)

func (p phase) wrap(name string, err error) error {
	var inProgress *cerr.UpgradeInProgressError
	if errors.As(err, &inProgress) {
		return err
	}
	switch p {
	case phaseDump:
		return &cerr.DumpError{Instance: name, Err: err}
	case phaseBackup:
		return &cerr.BackupError{Instance: name, Err: err}
	case phaseRestore:
		return &cerr.RestoreError{Instance: name, Err: err}
	default:
		return err
	}
}

type step struct {
	name       string
	phase      phase
	bestEffort bool
	run        func(uc *UseCase, ctx context.Context, up *upgrade) error
}

var compatibleSteps = []step{
	{name: "install", run: (*UseCase).install},
	{name: "persist metadata", run: (*UseCase).persistMetadata},
	{name: "register service", bestEffort: true, run: (*UseCase).register},
	{name: "restart", run: (*UseCase).restart},
}

var incompatibleSteps = []step{
	{name: "check upgrade marker", run: (*UseCase).checkMarker},
	{name: "install", run: (*UseCase).install},
	{name: "dump", phase: phaseDump, run: (*UseCase).dumpAndStop},
	{name: "backup", phase: phaseBackup, run: (*UseCase).backup},
	{name: "reinit data dir", phase: phaseRestore, run: (*UseCase).reinitDataDir},
	{name: "restore", phase: phaseRestore, run: (*UseCase).restore},
	{name: "persist metadata", phase: phaseRestore, run: (*UseCase).persistMetadata},
	{name: "copy tls material", phase: phaseRestore, run: (*UseCase).copyTLSMaterial},
	{name: "register service", bestEffort: true, run: (*UseCase).register},
	{name: "restart", run: (*UseCase).restart},
	{name: "delete upgrade marker", run: (*UseCase).deleteMarker},
}

func stepsOf(p model.UpgradePath) []step {
	if p == model.IncompatiblePath {
		return incompatibleSteps
	}
	return compatibleSteps
}

// execute runs steps in order. Errors of best-effort steps are logged
// and collected as report warnings, while other errors stop the
// execution and are classified by the step phase.
func (uc *UseCase) execute(
	ctx context.Context,
	steps []step,
	up *upgrade,
	report *model.UpgradeReport,
) error {
	for i, s := range steps {
		log.Debug(
			ctx, "running upgrade step",
			log.Instance(up.inst.Name),
			slog.String("step", s.name),
			slog.Int("index", i+1),
			slog.Int("total", len(steps)),
		)
		err := s.run(uc, ctx, up)
		if err == nil {
			continue
		}
		err = fmt.Errorf("%s: %w", s.name, err)
		if s.bestEffort {
			log.Warn(
				ctx, "best-effort upgrade step failed",
				log.Instance(up.inst.Name),
				slog.String("step", s.name),
				log.Err("err", err),
			)
			report.Warnings = append(report.Warnings, err)
			continue
		}
		err = s.phase.wrap(up.inst.Name, err)
		log.Error(
			ctx, "upgrade step failed",
			log.Instance(up.inst.Name),
			slog.String("step", s.name),
			log.Err("err", err),
		)
		return err
	}
	return nil
}
