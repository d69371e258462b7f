// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package httpcat implements the repo.Catalog interface over a JSON
// package index which is published by a package repository. The index
// may be fetched over http(s) or read from a local file, so offline
// mirrors can be used too.
//
// The index document has the following form:
//
//	{"packages": [
//	  {"name": "pg-16.2", "version": "16.2",
//	   "url": "16.2/pg-16.2-linux-x86_64.tar.zst",
//	   "sha256": "...", "size": 123}
//	]}
//
// Relative package URLs are resolved against the index URL.
package httpcat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/momeni/dbinst/pkg/core/log"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/momeni/dbinst/pkg/core/repo"
)

// Catalog fetches the package index on every FindPackage call.
type Catalog struct {
	indexURL *url.URL
	client   *http.Client
}

var _ repo.Catalog = (*Catalog)(nil)

// Option customizes a Catalog.
type Option func(c *Catalog) error

// WithHTTPClient replaces the default http client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Catalog) error {
		if hc == nil {
			return fmt.Errorf("nil http client")
		}
		c.client = hc
		return nil
	}
}

// New creates a Catalog for the index which is published at indexURL.
// The indexURL may be an http(s) URL, a file URL, or a plain path.
func New(indexURL string, opts ...Option) (*Catalog, error) {
	u, err := url.Parse(indexURL)
	if err != nil {
		return nil, fmt.Errorf("parsing index URL %q: %w", indexURL, err)
	}
	if u.Scheme == "" {
		abs, err := filepath.Abs(indexURL)
		if err != nil {
			return nil, fmt.Errorf("filepath.Abs(%q): %w", indexURL, err)
		}
		u = &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	}
	switch u.Scheme {
	case "http", "https", "file":
	default:
		return nil, fmt.Errorf("unsupported index URL scheme %q", u.Scheme)
	}
	c := &Catalog{indexURL: u}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: time.Minute}
	}
	return c, nil
}

type index struct {
	Packages []entry `json:"packages"`
}

type entry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	URL     string `json:"url"`
	SHA256  string `json:"sha256"`
	Size    int64  `json:"size"`
}

// FindPackage returns the greatest version which matches q, or nil if
// no package matches. Index entries with unparsable versions are
// skipped with a warning.
func (c *Catalog) FindPackage(
	ctx context.Context, q model.VersionQuery,
) (*model.PackageInfo, error) {
	idx, err := c.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching package index: %w", err)
	}
	var best *model.PackageInfo
	for _, e := range idx.Packages {
		v, err := model.ParseVersion(e.Version)
		if err != nil {
			log.Warn(
				ctx, "skipping index entry",
				slog.String("name", e.Name), log.Err("err", err),
			)
			continue
		}
		if !q.Matches(v) {
			continue
		}
		if best != nil && !best.Version.Less(v) {
			continue
		}
		pkgURL, err := c.indexURL.Parse(e.URL)
		if err != nil {
			return nil, fmt.Errorf("resolving %q URL: %w", e.Name, err)
		}
		best = &model.PackageInfo{
			Name:    e.Name,
			Version: v,
			Channel: model.ChannelOf(v),
			URL:     pkgURL.String(),
			SHA256:  e.SHA256,
			Size:    e.Size,
		}
	}
	return best, nil
}

func (c *Catalog) fetch(ctx context.Context) (*index, error) {
	var body io.ReadCloser
	if c.indexURL.Scheme == "file" {
		f, err := os.Open(filepath.FromSlash(c.indexURL.Path))
		if err != nil {
			return nil, err
		}
		body = f
	} else {
		req, err := http.NewRequestWithContext(
			ctx, http.MethodGet, c.indexURL.String(), nil,
		)
		if err != nil {
			return nil, fmt.Errorf("http.NewRequest: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("GET %s: %s", c.indexURL, resp.Status)
		}
		body = resp.Body
	}
	defer body.Close()
	idx := &index{}
	if err := json.NewDecoder(body).Decode(idx); err != nil {
		return nil, fmt.Errorf("decoding index: %w", err)
	}
	return idx, nil
}
