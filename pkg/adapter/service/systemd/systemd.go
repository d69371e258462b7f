// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package systemd implements the repo.ServiceController interface on
// top of the systemd service manager, talking to it over D-Bus. Each
// instance gets a dbinst-<name>.service unit which runs the server of
// its current installation.
package systemd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/coreos/go-systemd/v22/util"
	"github.com/juju/utils/v4"
	"github.com/momeni/dbinst/pkg/adapter/service/process"
	"github.com/momeni/dbinst/pkg/core/log"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/momeni/dbinst/pkg/core/repo"
)

// DBusAPI is the subset of *dbus.Conn which is used by Controller.
type DBusAPI interface {
	StartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	RestartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	ReloadContext(ctx context.Context) error
	EnableUnitFilesContext(ctx context.Context, files []string, runtime, force bool) (bool, []dbus.EnableUnitFileChange, error)
	Close()
}

// DBusFactory opens a D-Bus connection to systemd.
type DBusFactory func(ctx context.Context) (DBusAPI, error)

// UserBus connects to the systemd instance of the current user.
func UserBus(ctx context.Context) (DBusAPI, error) {
	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// SystemBus connects to the system-wide systemd instance.
func SystemBus(ctx context.Context) (DBusAPI, error) {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Controller manages instance servers as systemd units.
type Controller struct {
	registry repo.InstanceRegistry
	unitDir  string
	newDBus  DBusFactory
	running  func() bool
}

var _ repo.ServiceController = (*Controller)(nil)

// New creates a Controller which writes unit files into unitDir and
// connects to systemd using newDBus.
func New(
	registry repo.InstanceRegistry, unitDir string, newDBus DBusFactory,
) *Controller {
	return &Controller{
		registry: registry,
		unitDir:  unitDir,
		newDBus:  newDBus,
		running:  util.IsRunningSystemd,
	}
}

// UnitName returns the systemd unit name of the name instance.
func UnitName(name string) string {
	return "dbinst-" + name + ".service"
}

func (c *Controller) conn(ctx context.Context) (DBusAPI, error) {
	if !c.running() {
		return nil, repo.ErrNoServiceManager
	}
	conn, err := c.newDBus(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to systemd: %w", err)
	}
	return conn, nil
}

type unitJob func(ctx context.Context, name, mode string, ch chan<- string) (int, error)

func (c *Controller) run(
	ctx context.Context, op, name string, job func(DBusAPI) unitJob,
) error {
	conn, err := c.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	unit := UnitName(name)
	ch := make(chan string, 1)
	if _, err := job(conn)(ctx, unit, "replace", ch); err != nil {
		return fmt.Errorf("%s %s: %w", op, unit, err)
	}
	select {
	case result := <-ch:
		if result != "done" {
			return fmt.Errorf("%s %s: job result is %q", op, unit, result)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	log.Debug(ctx, "systemd job is done", log.Instance(name), log.Path("unit", unit))
	return nil
}

// Start starts the unit of inst.
func (c *Controller) Start(ctx context.Context, inst *model.InstanceInfo) error {
	return c.run(ctx, "start", inst.Name, func(d DBusAPI) unitJob {
		return d.StartUnitContext
	})
}

// Stop stops the unit of the name instance.
func (c *Controller) Stop(ctx context.Context, name string) error {
	return c.run(ctx, "stop", name, func(d DBusAPI) unitJob {
		return d.StopUnitContext
	})
}

// Restart restarts the unit of inst. The unit file must be registered
// beforehand for the new installation to take effect.
func (c *Controller) Restart(ctx context.Context, inst *model.InstanceInfo) error {
	return c.run(ctx, "restart", inst.Name, func(d DBusAPI) unitJob {
		return d.RestartUnitContext
	})
}

// Register writes the unit file of inst, reloads the systemd
// configuration, and enables the unit.
func (c *Controller) Register(ctx context.Context, inst *model.InstanceInfo) error {
	paths, err := c.registry.Paths(inst.Name)
	if err != nil {
		return err
	}
	unit, err := RenderUnit(inst, paths)
	if err != nil {
		return fmt.Errorf("rendering unit: %w", err)
	}
	conn, err := c.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	path := filepath.Join(c.unitDir, UnitName(inst.Name))
	if err := writeAtomic(path, unit); err != nil {
		return err
	}
	if err := conn.ReloadContext(ctx); err != nil {
		return fmt.Errorf("reloading systemd: %w", err)
	}
	if _, _, err := conn.EnableUnitFilesContext(ctx, []string{path}, false, true); err != nil {
		return fmt.Errorf("enabling %s: %w", path, err)
	}
	log.Info(ctx, "service is registered", log.Instance(inst.Name), log.Path("unit", path))
	return nil
}

// EnsureRunstateDir creates the runtime directory of the name instance.
// The unit itself recreates it with RuntimeDirectory when it is
// started by systemd.
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

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=dbinst database instance {{.Name}}
Documentation=https://www.postgresql.org/docs/
After=network.target

[Service]
Type=simple
RuntimeDirectory={{.RuntimeDirectory}}
RuntimeDirectoryPreserve=yes
ExecStart={{.ExecStart}}
ExecReload=/bin/kill -HUP $MAINPID
KillMode=mixed
KillSignal=SIGINT
TimeoutSec=300
Restart=on-failure

[Install]
WantedBy=default.target
`))

// RenderUnit returns the unit file content for running inst.
func RenderUnit(inst *model.InstanceInfo, paths model.Paths) ([]byte, error) {
	bin, args, err := process.ServerArgs(inst, paths, repo.NormalMode)
	if err != nil {
		return nil, err
	}
	words := make([]string, 0, len(args)+1)
	for _, w := range append([]string{bin}, args...) {
		words = append(words, quote(w))
	}
	buf := &bytes.Buffer{}
	err = unitTemplate.Execute(buf, struct {
		Name, RuntimeDirectory, ExecStart string
	}{
		Name:             inst.Name,
		RuntimeDirectory: "dbinst/" + inst.Name,
		ExecStart:        strings.Join(words, " "),
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// quote escapes w for an ExecStart command line, following the
// systemd.syntax rules for double-quoted words.
func quote(w string) string {
	if w != "" && !strings.ContainsAny(w, " \t\"'\\$%") {
		return w
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `$$`, `%`, `%%`)
	return `"` + r.Replace(w) + `"`
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating unit dir: %w", err)
	}
	if err := utils.AtomicWriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %q: %w", path, err)
	}
	return nil
}
