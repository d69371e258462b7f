// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package tarball implements the repo.Installer interface by
// downloading compressed server tarballs (.tar.zst or .tar.gz),
// verifying their checksums, and unpacking them into one directory
// per package below an installation root.
//
// Each unpacked package directory contains a bin/ directory with the
// server executables. An installation is first unpacked into a
// temporary sibling directory and then renamed into place, so a
// partially unpacked package is never taken as installed.
package tarball

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/momeni/dbinst/pkg/core/log"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/momeni/dbinst/pkg/core/repo"
)

// checksumFile is kept in each installed package directory and holds
// the sha256 of the tarball which it was unpacked from.
const checksumFile = ".sha256"

// Installer unpacks packages below its root directory.
type Installer struct {
	root   string
	client *http.Client
	now    func() time.Time
}

var _ repo.Installer = (*Installer)(nil)

// New creates an Installer which keeps packages below root.
// A nil client selects a client with a 30 minutes timeout.
func New(root string, client *http.Client) *Installer {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Minute}
	}
	return &Installer{root: root, client: client, now: time.Now}
}

// Install makes pkg available locally. If the same package (having the
// same checksum) is installed already, it is reused without a download.
func (in *Installer) Install(
	ctx context.Context, pkg *model.PackageInfo,
) (*model.InstallInfo, error) {
	dir := filepath.Join(in.root, pkg.Name)
	info := &model.InstallInfo{
		Version:     pkg.Version,
		PackageName: pkg.Name,
		ServerDir:   dir,
		InstalledAt: in.now().UTC(),
	}
	if sum, err := os.ReadFile(filepath.Join(dir, checksumFile)); err == nil {
		if strings.TrimSpace(string(sum)) == strings.ToLower(pkg.SHA256) {
			log.Info(
				ctx, "package is installed already",
				slog.String("package", pkg.Name), log.Path("dir", dir),
			)
			return info, nil
		}
	}
	if err := os.MkdirAll(in.root, 0o755); err != nil {
		return nil, fmt.Errorf("creating %q: %w", in.root, err)
	}
	archive, err := in.download(ctx, pkg)
	if err != nil {
		return nil, fmt.Errorf("downloading %q: %w", pkg.Name, err)
	}
	defer os.Remove(archive)

	tmp := dir + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return nil, fmt.Errorf("removing stale %q: %w", tmp, err)
	}
	if err := unpack(archive, pkg.URL, tmp); err != nil {
		_ = os.RemoveAll(tmp)
		return nil, fmt.Errorf("unpacking %q: %w", pkg.Name, err)
	}
	sum := []byte(strings.ToLower(pkg.SHA256) + "\n")
	if err := os.WriteFile(filepath.Join(tmp, checksumFile), sum, 0o644); err != nil {
		_ = os.RemoveAll(tmp)
		return nil, fmt.Errorf("writing checksum: %w", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("removing old %q: %w", dir, err)
	}
	if err := os.Rename(tmp, dir); err != nil {
		return nil, fmt.Errorf("os.Rename(%q, %q): %w", tmp, dir, err)
	}
	log.Info(
		ctx, "package is installed",
		slog.String("package", pkg.Name),
		log.Version("version", pkg.Version),
		log.Path("dir", dir),
	)
	return info, nil
}

// download stores the package archive in a temporary file below the
// installation root and verifies its size and checksum.
func (in *Installer) download(
	ctx context.Context, pkg *model.PackageInfo,
) (path string, err error) {
	src, err := in.open(ctx, pkg.URL)
	if err != nil {
		return "", err
	}
	defer src.Close()
	f, err := os.CreateTemp(in.root, ".download-*")
	if err != nil {
		return "", fmt.Errorf("os.CreateTemp: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()
	h := sha256.New()
	start := in.now()
	n, err := io.Copy(io.MultiWriter(f, h), src)
	if err != nil {
		return "", fmt.Errorf("copying: %w", err)
	}
	if pkg.Size > 0 && n != pkg.Size {
		return "", fmt.Errorf(
			"size mismatch: got %d bytes, want %d", n, pkg.Size,
		)
	}
	got := hex.EncodeToString(h.Sum(nil))
	if want := strings.ToLower(pkg.SHA256); want != "" && got != want {
		return "", fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
	}
	log.Debug(
		ctx, "package is downloaded",
		slog.String("size", humanize.Bytes(uint64(n))),
		slog.Duration("took", in.now().Sub(start)),
	)
	return f.Name(), nil
}

func (in *Installer) open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing URL: %w", err)
	}
	switch u.Scheme {
	case "", "file":
		return os.Open(filepath.FromSlash(u.Path))
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("http.NewRequest: %w", err)
	}
	resp, err := in.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", rawURL, resp.Status)
	}
	return resp.Body, nil
}

// unpack extracts the archive into dst. The compression is detected
// from the name suffix of the package URL.
func unpack(archive, name, dst string) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()
	var r io.Reader
	switch {
	case strings.HasSuffix(name, ".tar.zst"), strings.HasSuffix(name, ".tzst"):
		d, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("zstd.NewReader: %w", err)
		}
		defer d.Close()
		r = d
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		z, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("gzip.NewReader: %w", err)
		}
		defer z.Close()
		r = z
	case strings.HasSuffix(name, ".tar"):
		r = f
	default:
		return fmt.Errorf("unknown archive format: %q", name)
	}
	return extract(tar.NewReader(r), dst)
}

// ErrUnsafePath indicates that an archive entry would be written out
// of the destination directory.
var ErrUnsafePath = errors.New("archive entry escapes the destination")

func extract(tr *tar.Reader, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar header: %w", err)
		}
		rel := filepath.Clean(filepath.FromSlash(hdr.Name))
		if rel == "." {
			continue
		}
		if filepath.IsAbs(rel) || rel == ".." ||
			strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("%q: %w", hdr.Name, ErrUnsafePath)
		}
		target := filepath.Join(dst, rel)
		mode := fs.FileMode(hdr.Mode).Perm()
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, mode|0o700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, mode); err != nil {
				return fmt.Errorf("writing %q: %w", hdr.Name, err)
			}
		case tar.TypeSymlink:
			if filepath.IsAbs(hdr.Linkname) {
				return fmt.Errorf("%q -> %q: %w", hdr.Name, hdr.Linkname, ErrUnsafePath)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		default:
			// devices and fifos are not expected in server tarballs
		}
	}
}

func writeFile(path string, r io.Reader, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
