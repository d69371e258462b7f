// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fsmeta_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/momeni/dbinst/pkg/adapter/meta/fsmeta"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	r := require.New(t)
	s := fsmeta.NewStore()
	path := filepath.Join(t.TempDir(), "nested", "marker.json")
	um := model.UpgradeMeta{
		Source: model.MustParseVersion("15.2"),
		Target: model.MustParseVersion("16.1"),
		PID:    41,
	}
	r.NoError(s.WriteJSON(path, "upgrade marker", &um))
	um.PID = 42
	r.NoError(s.WriteJSON(path, "upgrade marker", &um), "overwrite")
	entries, err := os.ReadDir(filepath.Dir(path))
	r.NoError(err)
	r.Len(entries, 1, "temp files must be renamed")
	st, err := os.Stat(path)
	r.NoError(err)
	r.Equal(os.FileMode(0o644), st.Mode().Perm())

	var got model.UpgradeMeta
	r.NoError(s.ReadJSON(path, "upgrade marker", &got))
	r.True(got.Target.Equal(um.Target))
	r.Equal(42, got.PID)

	err = s.ReadJSON(path+".missing", "upgrade marker", &got)
	r.True(errors.Is(err, fs.ErrNotExist), "missing files must be detectable")
}

func TestRegistry(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	root := t.TempDir()
	s := fsmeta.NewStore()
	reg := fsmeta.NewRegistry(
		s, filepath.Join(root, "data"), filepath.Join(root, "run"),
		filepath.Join(root, "credentials"),
	)

	_, err := reg.Paths("../etc")
	r.Error(err)
	paths, err := reg.Paths("main")
	r.NoError(err)
	r.Equal(filepath.Join(root, "data", "main.backup"), paths.BackupDir)

	inst := &model.InstanceInfo{
		Name: "main", Port: 5433,
		Installation: &model.InstallInfo{
			Version: model.MustParseVersion("15.2"),
		},
	}
	r.NoError(s.WriteJSON(paths.InstanceInfoPath(), "instance", inst))
	r.NoError(os.MkdirAll(paths.BackupDir, 0o755))

	names, err := reg.List(ctx)
	r.NoError(err)
	r.Equal([]string{"main"}, names)

	got, err := reg.Read(ctx, "main")
	r.NoError(err)
	r.Equal(5433, got.Port)

	r.NoError(s.WriteJSON(reg.CredentialsPath("main"), "credentials",
		&fsmeta.Credentials{User: "admin", Password: "secret"}))
	cp, err := reg.AdminConnParams(ctx, got)
	r.NoError(err)
	assert.Equal(t, model.ConnParams{
		Host: paths.RuntimeDir, Port: 5433,
		User: "admin", Password: "secret", Database: "postgres",
	}, cp)
}

func TestProjectLocator(t *testing.T) {
	r := require.New(t)
	root := t.TempDir()
	link := func(stash, inst, dir string) {
		d := filepath.Join(root, "projects", stash)
		r.NoError(os.MkdirAll(d, 0o755))
		r.NoError(os.WriteFile(filepath.Join(d, "instance-name"), []byte(inst+"\n"), 0o644))
		r.NoError(os.WriteFile(filepath.Join(d, "project-path"), []byte(dir), 0o644))
	}
	link("shop-1a2b", "main", "/home/u/shop")
	link("blog-3c4d", "main", "/home/u/blog")
	link("other-5e6f", "other", "/home/u/other")

	pl := fsmeta.NewProjectLocator(root)
	dirs, err := pl.ProjectsUsing(context.Background(), "main")
	r.NoError(err)
	r.Equal([]string{"/home/u/blog", "/home/u/shop"}, dirs)

	dirs, err = fsmeta.NewProjectLocator(t.TempDir()).ProjectsUsing(
		context.Background(), "main",
	)
	r.NoError(err)
	r.Empty(dirs)
}
