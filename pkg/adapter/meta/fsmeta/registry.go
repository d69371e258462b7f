// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fsmeta

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/momeni/dbinst/pkg/core/repo"
)

var nameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]{0,61}$`)

// ValidateName checks name to be usable as a local instance name.
func ValidateName(name string) error {
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid instance name %q", name)
	}
	return nil
}

// Credentials is the content of an instance credentials file.
type Credentials struct {
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// Registry keeps every local instance in a dataRoot sub-directory,
// named after the instance. The backup directory, the dump directory,
// and the upgrade marker are siblings of the data directory.
type Registry struct {
	store       *Store
	dataRoot    string
	runtimeRoot string
	credsDir    string
}

var _ repo.InstanceRegistry = (*Registry)(nil)

// NewRegistry instantiates a Registry. Instances runtime directories
// (holding their unix sockets) are created in runtimeRoot and their
// administrator credentials are read from credsDir.
func NewRegistry(store *Store, dataRoot, runtimeRoot, credsDir string) *Registry {
	return &Registry{
		store:       store,
		dataRoot:    dataRoot,
		runtimeRoot: runtimeRoot,
		credsDir:    credsDir,
	}
}

// Paths returns the fixed locations of the name instance.
func (r *Registry) Paths(name string) (model.Paths, error) {
	if err := ValidateName(name); err != nil {
		return model.Paths{}, err
	}
	return model.Paths{
		DataDir:       filepath.Join(r.dataRoot, name),
		BackupDir:     filepath.Join(r.dataRoot, name+".backup"),
		DumpPath:      filepath.Join(r.dataRoot, name+".dump"),
		UpgradeMarker: filepath.Join(r.dataRoot, name+".UPGRADE_IN_PROGRESS"),
		RuntimeDir:    filepath.Join(r.runtimeRoot, name),
	}, nil
}

// Read loads the instance_info.json file of the name instance.
func (r *Registry) Read(
	ctx context.Context, name string,
) (*model.InstanceInfo, error) {
	paths, err := r.Paths(name)
	if err != nil {
		return nil, err
	}
	inst := &model.InstanceInfo{}
	err = r.store.ReadJSON(paths.InstanceInfoPath(), "instance metadata", inst)
	if err != nil {
		return nil, err
	}
	if inst.Name != name {
		return nil, fmt.Errorf(
			"instance metadata of %q belongs to %q", name, inst.Name,
		)
	}
	return inst, nil
}

// List returns the sorted names of directories in the data root which
// contain an instance metadata file.
func (r *Registry) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.dataRoot)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", r.dataRoot, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || ValidateName(e.Name()) != nil {
			continue
		}
		p := filepath.Join(r.dataRoot, e.Name(), model.InstanceInfoFile)
		if _, err := os.Stat(p); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// CredentialsPath returns the credentials file path of an instance.
func (r *Registry) CredentialsPath(name string) string {
	return filepath.Join(r.credsDir, name+".json")
}

// AdminConnParams builds the parameters for connecting to the unix
// socket of the inst server, using its stored credentials.
func (r *Registry) AdminConnParams(
	ctx context.Context, inst *model.InstanceInfo,
) (model.ConnParams, error) {
	paths, err := r.Paths(inst.Name)
	if err != nil {
		return model.ConnParams{}, err
	}
	var c Credentials
	err = r.store.ReadJSON(r.CredentialsPath(inst.Name), "credentials", &c)
	if err != nil {
		return model.ConnParams{}, err
	}
	if c.Database == "" {
		c.Database = "postgres"
	}
	return model.ConnParams{
		Host:     paths.RuntimeDir,
		Port:     inst.Port,
		User:     c.User,
		Password: c.Password,
		Database: c.Database,
	}, nil
}
