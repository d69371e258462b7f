// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package repo

import (
	"context"

	"github.com/momeni/dbinst/pkg/core/model"
)

// MetaStore persists small metadata records as files. Writes must be
// atomic, so a crash never leaves a half-written record behind.
type MetaStore interface {
	// WriteJSON serializes v into path. The desc describes the record
	// for error messages, e.g., "upgrade marker".
	WriteJSON(path, desc string, v any) error

	// ReadJSON deserializes path into v. A missing file is reported
	// with an error which matches fs.ErrNotExist.
	ReadJSON(path, desc string, v any) error
}

// InstanceRegistry knows the local instances.
type InstanceRegistry interface {
	// Read loads the metadata of the name instance.
	Read(ctx context.Context, name string) (*model.InstanceInfo, error)

	// Paths returns the filesystem locations of the name instance.
	Paths(name string) (model.Paths, error)

	// List returns the names of all local instances.
	List(ctx context.Context) ([]string, error)

	// AdminConnParams returns the parameters for connecting to the
	// inst server as its administrator.
	AdminConnParams(ctx context.Context, inst *model.InstanceInfo) (
		model.ConnParams, error,
	)
}

// ProjectLocator finds the projects which are linked to an instance.
type ProjectLocator interface {
	// ProjectsUsing returns the directories of the projects which use
	// the name instance.
	ProjectsUsing(ctx context.Context, name string) ([]string, error)
}
