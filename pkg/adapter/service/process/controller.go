// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package process

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/juju/clock"
	"github.com/momeni/dbinst/pkg/core/log"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/momeni/dbinst/pkg/core/repo"
)

// Controller is a repo.ServiceController which starts servers as
// detached processes. It tracks them by the pid file which the server
// keeps in its data directory, so servers survive the dbinst process
// and can be stopped by later invocations.
type Controller struct {
	registry     repo.InstanceRegistry
	clock        clock.Clock
	stopTimeout  time.Duration
	pollInterval time.Duration
}

var _ repo.ServiceController = (*Controller)(nil)

// NewController creates a Controller. A nil clk selects the wall clock.
func NewController(registry repo.InstanceRegistry, clk clock.Clock) *Controller {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Controller{
		registry:     registry,
		clock:        clk,
		stopTimeout:  DefaultStopTimeout,
		pollInterval: 100 * time.Millisecond,
	}
}

// Start spawns the inst server unless it is running already.
func (c *Controller) Start(ctx context.Context, inst *model.InstanceInfo) error {
	paths, err := c.registry.Paths(inst.Name)
	if err != nil {
		return err
	}
	if pid, ok, err := RunningPID(paths.DataDir); err != nil {
		return err
	} else if ok {
		log.Debug(
			ctx, "server is running already",
			log.Instance(inst.Name), slog.Int("pid", pid),
		)
		return nil
	}
	bin, args, err := ServerArgs(inst, paths, repo.NormalMode)
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
	pid := cmd.Process.Pid
	// The server is reaped by init after dbinst exits.
	go func() { _ = cmd.Wait() }()
	log.Info(
		ctx, "server is started",
		log.Instance(inst.Name), slog.Int("pid", pid),
	)
	return nil
}

// Stop interrupts the name server and waits until it exits.
// Stopping a server which is not running is not an error.
func (c *Controller) Stop(ctx context.Context, name string) error {
	paths, err := c.registry.Paths(name)
	if err != nil {
		return err
	}
	pid, ok, err := RunningPID(paths.DataDir)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("os.FindProcess(%d): %w", pid, err)
	}
	if err := interrupt(p); err != nil {
		return fmt.Errorf("interrupting %d: %w", pid, err)
	}
	deadline := c.clock.Now().Add(c.stopTimeout)
	for alive(pid) {
		if c.clock.Now().After(deadline) {
			return fmt.Errorf("server %d did not stop in %v", pid, c.stopTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(c.pollInterval):
		}
	}
	log.Info(ctx, "server is stopped", log.Instance(name), slog.Int("pid", pid))
	return nil
}

// Restart stops and starts the inst server.
func (c *Controller) Restart(ctx context.Context, inst *model.InstanceInfo) error {
	if err := c.Stop(ctx, inst.Name); err != nil {
		return err
	}
	return c.Start(ctx, inst)
}

// Register has nothing to register without a service manager. It only
// checks that the instance is installed, so its server can be started.
func (c *Controller) Register(ctx context.Context, inst *model.InstanceInfo) error {
	if inst.Installation == nil {
		return model.ErrNotInstalled
	}
	return nil
}

// EnsureRunstateDir creates the runtime directory of the name instance.
func (c *Controller) EnsureRunstateDir(ctx context.Context, name string) error {
	paths, err := c.registry.Paths(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(paths.RuntimeDir, 0o700); err != nil {
		return fmt.Errorf("creating %q: %w", paths.RuntimeDir, err)
	}
	return nil
}

