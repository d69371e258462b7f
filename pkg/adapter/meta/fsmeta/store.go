// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package fsmeta keeps the instances metadata as JSON files on the
// local filesystem. It provides the metadata store, the instances
// registry, and the projects locator.
package fsmeta

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/juju/utils/v4"
	"github.com/momeni/dbinst/pkg/core/repo"
)

// Store reads and writes JSON records. A record is first written and
// synced into a temporary sibling file and then renamed over its final
// path, so readers observe either the old or the new record, even
// after a crash.
type Store struct{}

var _ repo.MetaStore = (*Store)(nil)

// NewStore instantiates a Store.
func NewStore() *Store {
	return &Store{}
}

// WriteJSON writes v into path, creating its parent directories.
func (s *Store) WriteJSON(path, desc string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", desc, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory of %s: %w", desc, err)
	}
	if err := utils.AtomicWriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s to %s: %w", desc, path, err)
	}
	return nil
}

// ReadJSON reads path into v. The returned error matches fs.ErrNotExist
// if path is missing.
func (s *Store) ReadJSON(path, desc string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", desc, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decoding %s from %s: %w", desc, path, err)
	}
	return nil
}
