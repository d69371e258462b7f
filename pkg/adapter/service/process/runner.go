// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"github.com/momeni/dbinst/pkg/adapter/hash/scram"
	"github.com/momeni/dbinst/pkg/core/log"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/momeni/dbinst/pkg/core/repo"
	scrami "github.com/momeni/dbinst/pkg/core/scram"
)

// DefaultStopTimeout is the time which a server is given to shut down
// after an interrupt, before it is killed.
const DefaultStopTimeout = time.Minute

// ErrServerExited indicates that a server exited while the unit of
// work which needed it was still running.
var ErrServerExited = errors.New("server exited unexpectedly")

// Runner spawns servers as child processes of dbinst.
type Runner struct {
	registry    repo.InstanceRegistry
	hasher      scrami.Hasher
	clock       clock.Clock
	stopTimeout time.Duration
}

var _ repo.ServerRunner = (*Runner)(nil)

// RunnerOption customizes a Runner.
type RunnerOption func(r *Runner) error

// WithClock replaces the wall clock which is used for stop timeouts.
func WithClock(c clock.Clock) RunnerOption {
	return func(r *Runner) error {
		if c == nil {
			return errors.New("nil clock")
		}
		r.clock = c
		return nil
	}
}

// WithStopTimeout replaces DefaultStopTimeout.
func WithStopTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) error {
		if d <= 0 {
			return fmt.Errorf("non-positive stop timeout: %v", d)
		}
		r.stopTimeout = d
		return nil
	}
}

// NewRunner creates a Runner. The registry provides the instances
// paths and their administrator credentials, and hasher computes the
// administrator password verifier for bootstrapped data directories.
func NewRunner(
	registry repo.InstanceRegistry, hasher scrami.Hasher,
	opts ...RunnerOption,
) (*Runner, error) {
	if registry == nil || hasher == nil {
		return nil, errors.New("registry and hasher are mandatory")
	}
	r := &Runner{registry: registry, hasher: hasher}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.clock == nil {
		r.clock = clock.WallClock
	}
	if r.stopTimeout == 0 {
		r.stopTimeout = DefaultStopTimeout
	}
	return r, nil
}

// RunWhile implements repo.ServerRunner. In the bootstrap mode, the
// data directory (which must be empty) is initialized with the
// administrator role of the instance before the server is started.
func (r *Runner) RunWhile(
	ctx context.Context,
	inst *model.InstanceInfo,
	mode repo.ServerMode,
	fn func(ctx context.Context) error,
) error {
	paths, err := r.registry.Paths(inst.Name)
	if err != nil {
		return err
	}
	if mode == repo.BootstrapMode {
		if err := r.initdb(ctx, inst, paths); err != nil {
			return fmt.Errorf("initializing data dir: %w", err)
		}
	}
	bin, args, err := ServerArgs(inst, paths, mode)
	if err != nil {
		return err
	}
	logf, err := openLog(paths)
	if err != nil {
		return fmt.Errorf("opening server log: %w", err)
	}
	defer logf.Close()
	cmd := exec.Command(bin, args...)
	cmd.Stdout, cmd.Stderr = logf, logf
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %q: %w", bin, err)
	}
	log.Info(
		ctx, "server is spawned",
		log.Instance(inst.Name),
		slog.String("mode", mode.String()),
		slog.Int("pid", cmd.Process.Pid),
	)
	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
	}()

	fnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	fnDone := make(chan error, 1)
	go func() {
		fnDone <- fn(fnCtx)
	}()
	select {
	case fnErr := <-fnDone:
		stopErr := r.stop(ctx, inst.Name, cmd.Process, exited)
		if fnErr != nil {
			return fnErr
		}
		if stopErr != nil {
			return fmt.Errorf("stopping server: %w", stopErr)
		}
		return nil
	case waitErr := <-exited:
		cancel()
		<-fnDone
		return fmt.Errorf(
			"%w (%v), see %s", ErrServerExited, waitErr,
			filepath.Join(paths.RuntimeDir, LogFile),
		)
	}
}

func (r *Runner) stop(
	ctx context.Context, name string, p *os.Process, exited <-chan error,
) error {
	if err := interrupt(p); err != nil {
		log.Warn(
			ctx, "cannot interrupt server",
			log.Instance(name), log.Err("err", err),
		)
	}
	select {
	case <-exited:
		log.Info(ctx, "server is stopped", log.Instance(name))
		return nil
	case <-r.clock.After(r.stopTimeout):
	}
	if err := p.Kill(); err != nil {
		return fmt.Errorf("killing server: %w", err)
	}
	<-exited
	return fmt.Errorf("server did not stop in %v and was killed", r.stopTimeout)
}

// initdb creates a fresh cluster in the data directory whose superuser
// is the administrator of inst, authenticated by SCRAM.
func (r *Runner) initdb(
	ctx context.Context, inst *model.InstanceInfo, paths model.Paths,
) error {
	if inst.Installation == nil {
		return model.ErrNotInstalled
	}
	params, err := r.registry.AdminConnParams(ctx, inst)
	if err != nil {
		return fmt.Errorf("admin credentials: %w", err)
	}
	pwfile := filepath.Join(paths.RuntimeDir, PasswordFile)
	if err := scram.WritePasswordFile(r.hasher, pwfile, params.Password); err != nil {
		return err
	}
	defer os.Remove(pwfile)
	cmd := exec.CommandContext(
		ctx, inst.Installation.ServerBinary("initdb"),
		"-D", paths.DataDir,
		"-U", params.User,
		"--auth=scram-sha-256",
		"--pwfile="+pwfile,
		"-E", "UTF8",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("initdb: %w: %s", err, out)
	}
	log.Info(
		ctx, "data dir is initialized",
		log.Instance(inst.Name), log.Path("data", paths.DataDir),
	)
	return nil
}
