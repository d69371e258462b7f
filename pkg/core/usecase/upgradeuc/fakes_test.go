// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package upgradeuc_test

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/momeni/dbinst/pkg/core/repo"
)

const recordsFile = "records.txt"

type fakeCatalog struct {
	pkgs []model.PackageInfo
	err  error
}

func (fc *fakeCatalog) FindPackage(
	ctx context.Context, q model.VersionQuery,
) (*model.PackageInfo, error) {
	if fc.err != nil {
		return nil, fc.err
	}
	var best *model.PackageInfo
	for i := range fc.pkgs {
		p := &fc.pkgs[i]
		if q.Matches(p.Version) && (best == nil || best.Version.Less(p.Version)) {
			best = p
		}
	}
	if best == nil {
		return nil, nil
	}
	found := *best
	return &found, nil
}

type fakeInstaller struct {
	installed []model.Version
	err       error
	built     *model.Version // reported build version, if not pkg.Version
}

func (fi *fakeInstaller) Install(
	ctx context.Context, pkg *model.PackageInfo,
) (*model.InstallInfo, error) {
	if fi.err != nil {
		return nil, fi.err
	}
	fi.installed = append(fi.installed, pkg.Version)
	built := pkg.Version
	if fi.built != nil {
		built = *fi.built
	}
	return &model.InstallInfo{
		Version:     built,
		PackageName: pkg.Name,
		ServerDir:   "/opt/dbinst/" + pkg.Version.String(),
		InstalledAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

// journal records the calls of fake collaborators in order.
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, fmt.Sprintf(format, args...))
}

type fakeServices struct {
	*journal
	startErr, stopErr, registerErr, restartErr error
}

func (svc *fakeServices) Start(ctx context.Context, inst *model.InstanceInfo) error {
	svc.add("start %s", inst.Name)
	return svc.startErr
}

func (svc *fakeServices) Stop(ctx context.Context, name string) error {
	svc.add("stop %s", name)
	return svc.stopErr
}

func (svc *fakeServices) Restart(ctx context.Context, inst *model.InstanceInfo) error {
	v, _ := inst.Version()
	svc.add("restart %s %s", inst.Name, v)
	return svc.restartErr
}

func (svc *fakeServices) Register(ctx context.Context, inst *model.InstanceInfo) error {
	svc.add("register %s", inst.Name)
	return svc.registerErr
}

func (svc *fakeServices) EnsureRunstateDir(ctx context.Context, name string) error {
	svc.add("runstate %s", name)
	return nil
}

type fakeRunner struct {
	*journal
}

func (fr *fakeRunner) RunWhile(
	ctx context.Context,
	inst *model.InstanceInfo,
	mode repo.ServerMode,
	fn func(ctx context.Context) error,
) error {
	v, _ := inst.Version()
	fr.add("spawn %s %s %s", inst.Name, mode, v)
	return fn(ctx)
}

// fakeConnector serves a "server" whose whole content is the records
// file in the data directory of paths.
type fakeConnector struct {
	*journal
	paths      model.Paths
	dumpErr    error
	restoreErr error
	waits      []time.Duration
}

func (fc *fakeConnector) Connect(
	ctx context.Context, p model.ConnParams, wait time.Duration,
) (repo.AdminConn, error) {
	if p.Host != fc.paths.RuntimeDir {
		return nil, fmt.Errorf("unexpected host %q", p.Host)
	}
	fc.waits = append(fc.waits, wait)
	return &fakeConn{fc: fc}, nil
}

type fakeConn struct {
	fc *fakeConnector
}

func (c *fakeConn) DumpAll(ctx context.Context, dst string, secrets bool) error {
	c.fc.add("dump secrets=%t", secrets)
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.fc.dumpErr != nil {
		return c.fc.dumpErr
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	b, err := os.ReadFile(filepath.Join(c.fc.paths.DataDir, recordsFile))
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dst, recordsFile), b, 0o644)
}

func (c *fakeConn) RestoreAll(ctx context.Context, src string) error {
	c.fc.add("restore")
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.fc.restoreErr != nil {
		return c.fc.restoreErr
	}
	b, err := os.ReadFile(filepath.Join(src, recordsFile))
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.fc.paths.DataDir, recordsFile), b, 0o644)
}

func (c *fakeConn) Close() error {
	return nil
}

type fakeProjects map[string][]string

func (fp fakeProjects) ProjectsUsing(ctx context.Context, name string) ([]string, error) {
	return fp[name], nil
}

type fakeCloud struct {
	inst     *model.CloudInstance
	versions []model.Version
	requests []model.CloudUpgradeRequest
	finds    int
}

func (fc *fakeCloud) FindInstance(
	ctx context.Context, org, name string,
) (*model.CloudInstance, error) {
	fc.finds++
	if fc.inst == nil || fc.inst.Org != org || fc.inst.Name != name {
		return nil, nil
	}
	return fc.inst, nil
}

func (fc *fakeCloud) ResolveVersion(
	ctx context.Context, q model.VersionQuery,
) (model.Version, error) {
	var best model.Version
	for _, v := range fc.versions {
		if q.Matches(v) && best.Less(v) {
			best = v
		}
	}
	if best.IsZero() {
		return best, errors.New("no matching version")
	}
	return best, nil
}

func (fc *fakeCloud) UpgradeInstance(
	ctx context.Context, req model.CloudUpgradeRequest,
) error {
	fc.requests = append(fc.requests, req)
	return nil
}

// snapshot maps the relative paths of all entries under root to their
// contents (or "<dir>" for directories).
func snapshot(root string) (map[string]string, error) {
	tree := make(map[string]string)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			tree[rel] = "<dir>"
			return nil
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		tree[rel] = string(b)
		return nil
	})
	return tree, err
}
