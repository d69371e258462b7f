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
	"sort"
	"strings"

	"github.com/momeni/dbinst/pkg/core/repo"
)

// ProjectLocator finds projects by their stash directories. Each
// linked project has a directory under <root>/projects containing an
// "instance-name" file (naming the linked instance) and a
// "project-path" file (holding the project directory).
type ProjectLocator struct {
	root string
}

var _ repo.ProjectLocator = (*ProjectLocator)(nil)

// NewProjectLocator instantiates a ProjectLocator for the root config
// directory.
func NewProjectLocator(root string) *ProjectLocator {
	return &ProjectLocator{root: root}
}

// ProjectsUsing returns the sorted project directories which are
// linked to the name instance.
func (pl *ProjectLocator) ProjectsUsing(
	ctx context.Context, name string,
) ([]string, error) {
	stashes := filepath.Join(pl.root, "projects")
	entries, err := os.ReadDir(stashes)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", stashes, err)
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		stash := filepath.Join(stashes, e.Name())
		inst, err := readTrimmed(filepath.Join(stash, "instance-name"))
		if err != nil || inst != name {
			continue
		}
		dir, err := readTrimmed(filepath.Join(stash, "project-path"))
		if err != nil {
			dir = stash
		}
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs, nil
}

func readTrimmed(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
