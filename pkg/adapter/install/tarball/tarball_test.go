// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tarball_test

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/momeni/dbinst/pkg/adapter/install/tarball"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type file struct {
	name, body string
}

func makeTarball(t *testing.T, files []file, compress func(io.Writer) io.WriteCloser) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	cw := compress(buf)
	tw := tar.NewWriter(cw)
	for _, f := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     f.name,
			Mode:     0o755,
			Size:     int64(len(f.body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(f.body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, cw.Close())
	return buf.Bytes()
}

func zstdWriter(t *testing.T) func(io.Writer) io.WriteCloser {
	return func(w io.Writer) io.WriteCloser {
		zw, err := zstd.NewWriter(w)
		require.NoError(t, err)
		return zw
	}
}

func gzipWriter(w io.Writer) io.WriteCloser {
	return gzip.NewWriter(w)
}

func publish(t *testing.T, dir, name string, data []byte) *model.PackageInfo {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	sum := sha256.Sum256(data)
	return &model.PackageInfo{
		Name:    "pg-16.2",
		Version: model.MustParseVersion("16.2"),
		Channel: model.ChannelStable,
		URL:     path,
		SHA256:  hex.EncodeToString(sum[:]),
		Size:    int64(len(data)),
	}
}

func TestInstallZstdTarball(t *testing.T) {
	repoDir, root := t.TempDir(), t.TempDir()
	data := makeTarball(t, []file{
		{"bin/postgres", "#!/bin/sh\n"},
		{"share/README", "hello"},
	}, zstdWriter(t))
	pkg := publish(t, repoDir, "pg.tar.zst", data)

	in := tarball.New(root, nil)
	info, err := in.Install(context.Background(), pkg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "pg-16.2"), info.ServerDir)
	assert.Equal(t, "16.2", info.Version.String())
	b, err := os.ReadFile(info.ServerBinary("postgres"))
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\n", string(b))

	// a second install is served from the unpacked directory
	require.NoError(t, os.Remove(pkg.URL))
	info2, err := in.Install(context.Background(), pkg)
	require.NoError(t, err)
	assert.Equal(t, info.ServerDir, info2.ServerDir)
}

func TestInstallGzipTarball(t *testing.T) {
	repoDir, root := t.TempDir(), t.TempDir()
	data := makeTarball(t, []file{{"bin/initdb", "x"}}, gzipWriter)
	pkg := publish(t, repoDir, "pg.tar.gz", data)
	info, err := tarball.New(root, nil).Install(context.Background(), pkg)
	require.NoError(t, err)
	assert.FileExists(t, info.ServerBinary("initdb"))
}

func TestInstallRejectsChecksumMismatch(t *testing.T) {
	repoDir, root := t.TempDir(), t.TempDir()
	data := makeTarball(t, []file{{"bin/postgres", "x"}}, zstdWriter(t))
	pkg := publish(t, repoDir, "pg.tar.zst", data)
	pkg.SHA256 = "00"
	_, err := tarball.New(root, nil).Install(context.Background(), pkg)
	require.Error(t, err)
	assert.NoDirExists(t, filepath.Join(root, "pg-16.2"))
}

func TestInstallRejectsUnsafeEntries(t *testing.T) {
	repoDir, root := t.TempDir(), t.TempDir()
	data := makeTarball(t, []file{{"../evil", "x"}}, zstdWriter(t))
	pkg := publish(t, repoDir, "pg.tar.zst", data)
	_, err := tarball.New(root, nil).Install(context.Background(), pkg)
	require.ErrorIs(t, err, tarball.ErrUnsafePath)
	assert.NoFileExists(t, filepath.Join(root, "evil"))
}
