// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package repo

import (
	"context"
	"errors"

	"github.com/momeni/dbinst/pkg/core/model"
)

// ErrNoServiceManager indicates that a ServiceController has no
// service manager to delegate to on this platform.
var ErrNoServiceManager = errors.New("service manager is not available")

// ServiceController manages the server of an instance as an OS
// service.
type ServiceController interface {
	// Start starts the instance server if it is not running yet.
	Start(ctx context.Context, inst *model.InstanceInfo) error

	// Stop stops the instance server.
	Stop(ctx context.Context, name string) error

	// Restart (re)starts the instance server, so it runs the binary
	// of the current installation.
	Restart(ctx context.Context, inst *model.InstanceInfo) error

	// Register creates or updates the service definition of inst.
	Register(ctx context.Context, inst *model.InstanceInfo) error

	// EnsureRunstateDir creates the runtime directory of the name
	// instance, holding its unix sockets and lock files.
	EnsureRunstateDir(ctx context.Context, name string) error
}

// ServerMode selects how a spawned server is started.
type ServerMode int

const (
	// NormalMode runs the server on its existing data directory.
	NormalMode ServerMode = iota
	// BootstrapMode initializes an empty data directory first and
	// runs the server with a generated self-signed configuration,
	// suitable for restoring a dump.
	BootstrapMode
)

func (m ServerMode) String() string {
	if m == BootstrapMode {
		return "bootstrap"
	}
	return "normal"
}

// ServerRunner runs a server for the duration of a unit of work.
type ServerRunner interface {
	// RunWhile starts the server of inst in the given mode, runs fn,
	// and stops the server before returning, regardless of the fn
	// outcome. The fn context is cancelled if the server exits early.
	RunWhile(
		ctx context.Context,
		inst *model.InstanceInfo,
		mode ServerMode,
		fn func(ctx context.Context) error,
	) error
}
