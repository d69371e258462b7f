// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package gin_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/momeni/dbinst/pkg/adapter/restful/gin"
	"github.com/momeni/dbinst/pkg/adapter/restful/gin/instancesrs"
	"github.com/momeni/dbinst/pkg/adapter/restful/gin/metrics"
	"github.com/momeni/dbinst/pkg/adapter/restful/gin/routes"
	"github.com/momeni/dbinst/pkg/core/cerr"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/momeni/dbinst/pkg/core/usecase/upgradeuc"
	"github.com/stretchr/testify/suite"
)

type fakeUseCase struct {
	mu       sync.Mutex
	requests []upgradeuc.LocalRequest
	fail     error
	block    chan struct{}
	entered  chan struct{}
}

func (f *fakeUseCase) List(ctx context.Context) ([]model.InstanceStatus, error) {
	st, err := f.Status(ctx, "main")
	if err != nil {
		return nil, err
	}
	return []model.InstanceStatus{*st}, nil
}

func (f *fakeUseCase) Status(
	_ context.Context, name string,
) (*model.InstanceStatus, error) {
	if name != "main" {
		return nil, cerr.NotFound(errors.New("instance not found"))
	}
	return &model.InstanceStatus{
		Instance: model.InstanceInfo{
			Name: "main",
			Port: 10701,
			Installation: &model.InstallInfo{
				Version: model.MustParseVersion("15.4"),
			},
		},
		DataDirExists: true,
		Marker: &model.UpgradeMeta{
			Source:  model.MustParseVersion("15.4"),
			Target:  model.MustParseVersion("16.2"),
			Started: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			PID:     42,
		},
	}, nil
}

func (f *fakeUseCase) UpgradeLocal(
	_ context.Context, req upgradeuc.LocalRequest,
) (*model.UpgradeReport, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.block != nil {
		f.entered <- struct{}{}
		<-f.block
	}
	if f.fail != nil {
		return nil, f.fail
	}
	return &model.UpgradeReport{
		UpgradeResult: model.UpgradeResult{
			Action:           model.ActionUpgraded,
			PriorVersion:     model.MustParseVersion("15.4"),
			RequestedVersion: model.MustParseVersion("16.2"),
		},
		Instance: req.Name,
		Path:     model.IncompatiblePath,
		Warnings: []error{errors.New("service registration skipped")},
	}, nil
}

func (f *fakeUseCase) Revert(
	_ context.Context, name string, ignoreMarker bool,
) (*upgradeuc.RevertReport, error) {
	if !ignoreMarker {
		return nil, cerr.Conflict(upgradeuc.ErrNoUpgradeInProgress)
	}
	return &upgradeuc.RevertReport{
		Instance: name,
		Version:  model.MustParseVersion("15.4"),
	}, nil
}

type GinTestSuite struct {
	suite.Suite

	uc  *fakeUseCase
	Gin *gin.Engine
}

func TestGinTestSuite(t *testing.T) {
	suite.Run(t, new(GinTestSuite))
}

func (gts *GinTestSuite) SetupTest() {
	gts.uc = &fakeUseCase{}
	gts.Gin = gin.New(gin.Logger(), gin.Recovery())
	routes.Register(gts.Gin, gts.uc, metrics.New())
}

func (gts *GinTestSuite) send(method, path, body string, res any) int {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, path, r)
	gts.Require().NoError(err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	gts.Gin.ServeHTTP(w, req)
	gts.NotEmpty(w.Header().Get(gin.RequestIDHeader))
	if res != nil {
		gts.Require().NoError(json.Unmarshal(w.Body.Bytes(), res), w.Body.String())
	}
	return w.Code
}

func (gts *GinTestSuite) TestStatus() {
	res := struct {
		Name        string
		Version     string
		Port        int
		NeedsRevert bool `json:"needs_revert"`
		Marker      *struct {
			Target string
		} `json:"upgrade_marker"`
	}{}
	code := gts.send(http.MethodGet, "/api/dbinst/v1/instances/main", "", &res)
	gts.Equal(http.StatusOK, code)
	gts.Equal("main", res.Name)
	gts.Equal("15.4", res.Version)
	gts.Equal(10701, res.Port)
	gts.True(res.NeedsRevert)
	gts.Require().NotNil(res.Marker)
	gts.Equal("16.2", res.Marker.Target)

	detail := struct{ Detail string }{}
	code = gts.send(http.MethodGet, "/api/dbinst/v1/instances/other", "", &detail)
	gts.Equal(http.StatusNotFound, code)
	gts.Equal("instance not found", detail.Detail)
}

func (gts *GinTestSuite) TestList() {
	res := struct {
		Instances []struct {
			Name        string
			NeedsRevert bool `json:"needs_revert"`
		}
	}{}
	code := gts.send(http.MethodGet, "/api/dbinst/v1/instances", "", &res)
	gts.Equal(http.StatusOK, code)
	gts.Require().Len(res.Instances, 1)
	gts.Equal("main", res.Instances[0].Name)
	gts.True(res.Instances[0].NeedsRevert)
}

func (gts *GinTestSuite) TestUpgrade() {
	res := struct {
		Action           string
		Instance         string
		Path             string
		RequestedVersion string `json:"requested_version"`
		Warnings         []string
	}{}
	code := gts.send(
		http.MethodPost, "/api/dbinst/v1/instances/main/upgrade",
		`{"to_version": "16", "force_dump_restore": true}`, &res,
	)
	gts.Equal(http.StatusOK, code)
	gts.Equal("upgraded", res.Action)
	gts.Equal("dump-restore", res.Path)
	gts.Equal("16.2", res.RequestedVersion)
	gts.Equal([]string{"service registration skipped"}, res.Warnings)
	gts.Require().Len(gts.uc.requests, 1)
	gts.Equal(upgradeuc.LocalRequest{
		Name:             "main",
		Query:            model.QueryOptions{Version: "16"},
		ForceDumpRestore: true,
	}, gts.uc.requests[0])

	code = gts.send(http.MethodPost, "/api/dbinst/v1/instances/main/upgrade", "", &res)
	gts.Equal(http.StatusOK, code, "empty body selects the default version")
	gts.Len(gts.uc.requests, 2)
}

func (gts *GinTestSuite) TestUpgradeBadRequest() {
	res := map[string][]string{}
	code := gts.send(
		http.MethodPost, "/api/dbinst/v1/instances/main/upgrade",
		`{"to_latest": true, "to_nightly": true}`, &res,
	)
	gts.Equal(http.StatusBadRequest, code)
	gts.Require().Len(res["to_*"], 1)
	gts.Contains(res["to_*"][0], "only one of")

	res = map[string][]string{}
	code = gts.send(
		http.MethodPost, "/api/dbinst/v1/instances/main/upgrade",
		`{"to_channel": "weekly"}`, &res,
	)
	gts.Equal(http.StatusBadRequest, code)
	gts.Require().Len(res["ToChannel"], 1)
	gts.Contains(res["ToChannel"][0], "failed on the 'oneof' tag")
	gts.Empty(gts.uc.requests)
}

func (gts *GinTestSuite) TestUpgradeNeedsRevert() {
	gts.uc.fail = &cerr.RestoreError{
		Instance: "main", Err: errors.New("restore failed"),
	}
	res := struct {
		Detail        string
		NeedsRevert   bool   `json:"needs_revert"`
		RevertCommand string `json:"revert_command"`
	}{}
	code := gts.send(http.MethodPost, "/api/dbinst/v1/instances/main/upgrade", "", &res)
	gts.Equal(http.StatusInternalServerError, code)
	gts.True(res.NeedsRevert)
	gts.Equal(`dbinst instance revert -I "main"`, res.RevertCommand)
	gts.Contains(res.Detail, "restore failed")
}

func (gts *GinTestSuite) TestConcurrentUpgradeIsRejected() {
	gts.uc.block = make(chan struct{})
	gts.uc.entered = make(chan struct{})
	done := make(chan int)
	go func() {
		req := httptest.NewRequest(
			http.MethodPost, "/api/dbinst/v1/instances/main/upgrade", nil,
		)
		w := httptest.NewRecorder()
		gts.Gin.ServeHTTP(w, req)
		done <- w.Code
	}()
	<-gts.uc.entered
	detail := struct{ Detail string }{}
	code := gts.send(http.MethodPost, "/api/dbinst/v1/instances/main/revert",
		`{"ignore_marker": true}`, &detail)
	gts.Equal(http.StatusConflict, code)
	gts.Equal(instancesrs.ErrBusy.Error(), detail.Detail)
	close(gts.uc.block)
	gts.Equal(http.StatusOK, <-done)
}

func (gts *GinTestSuite) TestRevert() {
	res := struct {
		Instance string
		Version  string
	}{}
	code := gts.send(http.MethodPost, "/api/dbinst/v1/instances/main/revert",
		`{"ignore_marker": true}`, &res)
	gts.Equal(http.StatusOK, code)
	gts.Equal("main", res.Instance)
	gts.Equal("15.4", res.Version)

	code = gts.send(http.MethodPost, "/api/dbinst/v1/instances/main/revert", "", nil)
	gts.Equal(http.StatusConflict, code)
}

func (gts *GinTestSuite) TestMetrics() {
	gts.send(http.MethodPost, "/api/dbinst/v1/instances/main/upgrade", "", nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	gts.Gin.ServeHTTP(w, req)
	gts.Equal(http.StatusOK, w.Code)
	body := w.Body.String()
	gts.Contains(body, `dbinst_upgrades_total{outcome="upgraded"} 1`)
	gts.Contains(body, `dbinst_http_requests_total{method="POST",`+
		`route="/api/dbinst/v1/instances/:name/upgrade",status="200"} 1`)
}
