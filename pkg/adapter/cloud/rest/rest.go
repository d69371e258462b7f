// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package rest implements a repo.CloudClient over the JSON API of the
// cloud control plane. Every request carries a bearer token and a
// fresh X-Request-ID header which is logged along with failures.
//
// The following endpoints are used, relative to the API base URL:
//
//	GET  orgs/{org}/instances/{name}           -> model.CloudInstance
//	GET  versions?channel=...&constraint=...   -> {"version": "..."}
//	POST orgs/{org}/instances/{name}/upgrade   <- model.CloudUpgradeRequest
package rest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/momeni/dbinst/pkg/core/cerr"
	"github.com/momeni/dbinst/pkg/core/log"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/momeni/dbinst/pkg/core/repo"
)

// ErrNoToken is returned by New when no API token is given.
var ErrNoToken = errors.New("cloud API token is not set")

// APIError is a non-successful response of the control plane.
type APIError struct {
	Status    int
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf(
		"cloud API error %d: %s (request %s)",
		e.Status, e.Message, e.RequestID,
	)
}

// HTTPStatus maps the control plane failures to the agent responses.
func (e *APIError) HTTPStatus() int {
	switch e.Status {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict:
		return e.Status
	default:
		return http.StatusBadGateway
	}
}

// Client is a control plane client. It is safe for concurrent use.
type Client struct {
	base  *url.URL
	token string
	hc    *http.Client
}

var _ repo.CloudClient = (*Client)(nil)

// Option customizes a Client.
type Option func(c *Client) error

// WithHTTPClient replaces the default HTTP client, which times out
// after one minute.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("nil http client")
		}
		c.hc = hc
		return nil
	}
}

// New creates a Client for the apiURL base address.
func New(apiURL, token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("parsing cloud API URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported cloud API URL scheme: %q", u.Scheme)
	}
	if u.Path == "" || u.Path[len(u.Path)-1] != '/' {
		u.Path += "/"
	}
	c := &Client{base: u, token: token}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.hc == nil {
		c.hc = &http.Client{Timeout: time.Minute}
	}
	return c, nil
}

// FindInstance implements repo.CloudClient.
func (c *Client) FindInstance(
	ctx context.Context, org, name string,
) (*model.CloudInstance, error) {
	ci := &model.CloudInstance{}
	err := c.do(ctx, http.MethodGet, instancePath(org, name), nil, nil, ci)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ci, nil
}

type versionResponse struct {
	Version model.Version `json:"version"`
}

// ResolveVersion implements repo.CloudClient.
func (c *Client) ResolveVersion(
	ctx context.Context, q model.VersionQuery,
) (model.Version, error) {
	params := url.Values{}
	params.Set("channel", string(q.Channel))
	if q.Constraint != "" {
		params.Set("constraint", q.Constraint)
	}
	vr := &versionResponse{}
	err := c.do(ctx, http.MethodGet, "versions", params, nil, vr)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return model.Version{}, &cerr.NoMatchingPackageError{Query: q}
	}
	if err != nil {
		return model.Version{}, err
	}
	if vr.Version.IsZero() {
		return model.Version{}, &cerr.NoMatchingPackageError{Query: q}
	}
	return vr.Version, nil
}

// UpgradeInstance implements repo.CloudClient.
func (c *Client) UpgradeInstance(
	ctx context.Context, req model.CloudUpgradeRequest,
) error {
	p := instancePath(req.Org, req.Name) + "/upgrade"
	return c.do(ctx, http.MethodPost, p, nil, req, nil)
}

func instancePath(org, name string) string {
	return "orgs/" + org + "/instances/" + name
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) do(
	ctx context.Context,
	method, path string,
	params url.Values,
	body, dst any,
) error {
	u := c.base.ResolveReference(&url.URL{Path: path})
	if params != nil {
		u.RawQuery = params.Encode()
	}
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return fmt.Errorf("http.NewRequest: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return cerr.Unavailable(fmt.Errorf("%s %s: %w", method, u.Path, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		er := &errorResponse{}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(b, er) != nil || er.Error == "" {
			er.Error = http.StatusText(resp.StatusCode)
		}
		log.Debug(
			ctx, "cloud API request failed",
			slog.String("method", method),
			slog.String("path", u.Path),
			slog.Int("status", resp.StatusCode),
			slog.String("request_id", reqID),
		)
		return &APIError{
			Status:    resp.StatusCode,
			Message:   er.Error,
			RequestID: reqID,
		}
	}
	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding %s response: %w", u.Path, err)
	}
	return nil
}
