// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package upgradeuc contains the instance upgrade use cases.
//
// A local instance is upgraded by one of two fixed step sequences.
// The compatible path replaces the server binary in place, while the
// incompatible path dumps the whole instance, moves its data directory
// aside as a backup, restores the dump into a freshly initialized data
// directory using the new server, and finally restarts it. An upgrade
// marker file is written before the data directory is moved and it is
// removed only after the upgraded instance is operational, hence, its
// presence means that the instance needs a manual revert.
//
// Cloud instances are upgraded by the control plane, so the CloudUseCase
// only resolves the target version, asks for a confirmation, and sends
// one upgrade request.
package upgradeuc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/momeni/dbinst/pkg/core/cerr"
	"github.com/momeni/dbinst/pkg/core/log"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/momeni/dbinst/pkg/core/repo"
)

// Default durations for waiting until a server accepts connections.
const (
	DefaultRestoreWait = 300 * time.Second
	DefaultDumpWait    = 30 * time.Second
)

// UseCase represents the local instances upgrade use cases. It holds
// the collaborators which are required for resolving, installing,
// and running server packages and for transferring the instance data.
type UseCase struct {
	registry  repo.InstanceRegistry
	catalog   repo.Catalog
	installer repo.Installer
	services  repo.ServiceController
	runner    repo.ServerRunner
	connector repo.Connector
	meta      repo.MetaStore

	backups  *BackupManager
	projects repo.ProjectLocator

	restoreWait time.Duration
	dumpWait    time.Duration
	now         func() time.Time
	pid         int
}

// Collaborators groups the mandatory dependencies of a UseCase.
type Collaborators struct {
	Registry  repo.InstanceRegistry
	Catalog   repo.Catalog
	Installer repo.Installer
	Services  repo.ServiceController
	Runner    repo.ServerRunner
	Connector repo.Connector
	Meta      repo.MetaStore
}

func (c Collaborators) validate() error {
	switch {
	case c.Registry == nil:
		return fmt.Errorf("instance registry is missing")
	case c.Catalog == nil:
		return fmt.Errorf("catalog is missing")
	case c.Installer == nil:
		return fmt.Errorf("installer is missing")
	case c.Services == nil:
		return fmt.Errorf("service controller is missing")
	case c.Runner == nil:
		return fmt.Errorf("server runner is missing")
	case c.Connector == nil:
		return fmt.Errorf("connector is missing")
	case c.Meta == nil:
		return fmt.Errorf("metadata store is missing")
	}
	return nil
}

// New instantiates an upgrade use case.
// All collaborators are mandatory, while optional parameters are
// passed as a series of functional options.
func New(c Collaborators, opts ...Option) (*UseCase, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	uc := &UseCase{
		registry:  c.Registry,
		catalog:   c.Catalog,
		installer: c.Installer,
		services:  c.Services,
		runner:    c.Runner,
		connector: c.Connector,
		meta:      c.Meta,
	}
	for _, opt := range opts {
		if err := opt(uc); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	// now, deal with defaults
	if uc.restoreWait == 0 {
		uc.restoreWait = DefaultRestoreWait
	}
	if uc.dumpWait == 0 {
		uc.dumpWait = DefaultDumpWait
	}
	if uc.now == nil {
		uc.now = time.Now
	}
	if uc.pid == 0 {
		uc.pid = os.Getpid()
	}
	uc.backups = NewBackupManager(uc.meta, uc.now, uc.pid)
	return uc, nil
}

// LocalRequest describes an upgrade of a local instance.
type LocalRequest struct {
	Name  string
	Query model.QueryOptions

	// Force permits reinstalling the same (or an older) version and
	// upgrading an instance which is used by projects.
	Force bool

	// ForceDumpRestore selects the dump and restore path even for
	// compatible versions.
	ForceDumpRestore bool
}

// UpgradeLocal upgrades the req.Name local instance. If the resolved
// target version is not newer than the installed version (and Force
// is not set), it returns a report with the ActionNone action without
// changing anything. Errors of the steps which follow the data
// directory backup are reported as *cerr.RestoreError values, hence,
// the instance must be reverted manually. Canceling ctx only aborts
// the version resolution; once the steps start, they run to the end.
func (uc *UseCase) UpgradeLocal(
	ctx context.Context, req LocalRequest,
) (*model.UpgradeReport, error) {
	inst, err := uc.registry.Read(ctx, req.Name)
	if err != nil {
		return nil, fmt.Errorf("reading instance %q: %w", req.Name, err)
	}
	current, err := inst.Version()
	if err != nil {
		return nil, fmt.Errorf("instance %q: %w", req.Name, err)
	}
	pkg, q, versionOption, err := uc.Resolve(ctx, req.Query, current)
	if err != nil {
		return nil, err
	}
	report := &model.UpgradeReport{
		UpgradeResult: model.UpgradeResult{
			Action:           model.ActionNone,
			PriorVersion:     current,
			RequestedVersion: pkg.Version,
		},
		Instance: inst.Name,
		Package:  pkg,
		Query:    q,
	}
	if err := uc.checkProjects(ctx, inst.Name, req.Force, q, report); err != nil {
		return report, err
	}
	if IsNoop(current, pkg.Version, req.Force) {
		report.AvailableUpgrade = uc.availableUpgrade(ctx, q, current)
		log.Info(
			ctx, "instance is already up to date",
			log.Instance(inst.Name),
			log.Valuer("current", current),
			log.Valuer("latest", pkg.Version),
		)
		return report, nil
	}
	report.Path = Classify(
		current, pkg.Version, req.Force, versionOption,
		req.ForceDumpRestore,
	)
	paths, err := uc.registry.Paths(inst.Name)
	if err != nil {
		return report, fmt.Errorf("instance %q paths: %w", inst.Name, err)
	}
	log.Info(
		ctx, "upgrading instance",
		log.Instance(inst.Name),
		log.Valuer("from", current),
		log.Valuer("to", pkg.Version),
		log.Valuer("path", report.Path),
	)
	up := &upgrade{inst: inst, pkg: pkg, paths: paths, source: current}
	// Steps may not be interrupted halfway, so a canceled caller (e.g.,
	// a disconnected REST client) cannot leave a half-restored instance.
	ctx = context.WithoutCancel(ctx)
	if err := uc.execute(ctx, stepsOf(report.Path), up, report); err != nil {
		return report, err
	}
	report.Action = model.ActionUpgraded
	return report, nil
}

func (uc *UseCase) checkProjects(
	ctx context.Context,
	name string,
	force bool,
	q model.VersionQuery,
	report *model.UpgradeReport,
) error {
	if uc.projects == nil {
		return nil
	}
	dirs, err := uc.projects.ProjectsUsing(ctx, name)
	if err != nil {
		return fmt.Errorf("finding projects of %q: %w", name, err)
	}
	if len(dirs) == 0 {
		return nil
	}
	report.Projects = dirs
	if !force {
		return cerr.Conflict(&InstanceInUseError{
			Instance: name, Projects: dirs, Query: q,
		})
	}
	log.Warn(
		ctx, "upgrading an instance which is used by projects",
		log.Instance(name),
		slog.Any("projects", dirs),
	)
	return nil
}

// availableUpgrade looks for a stable version which is newer than
// current, but is excluded by the q query (e.g., a next major version).
func (uc *UseCase) availableUpgrade(
	ctx context.Context, q model.VersionQuery, current model.Version,
) *model.Version {
	if q == model.StableQuery() {
		return nil
	}
	pkg, err := uc.catalog.FindPackage(ctx, model.StableQuery())
	if err != nil {
		log.Debug(ctx, "cannot check for newer versions", log.Err("err", err))
		return nil
	}
	if pkg == nil || !current.Less(pkg.Version) {
		return nil
	}
	v := pkg.Version
	return &v
}

// InstanceInUseError indicates that an instance is linked to projects
// and upgrading it alone (without Force) is refused. The projects
// should be upgraded using the Query instead.
type InstanceInUseError struct {
	Instance string
	Projects []string
	Query    model.VersionQuery
}

func (e *InstanceInUseError) Error() string {
	return fmt.Sprintf(
		"instance %q is used by %d project(s); upgrade aborted",
		e.Instance, len(e.Projects),
	)
}
