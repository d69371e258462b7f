// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package instancesrs realizes the instances resource, accepting the
// status, upgrade, and revert REST APIs and delegating them to the
// upgrade use cases.
package instancesrs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/momeni/dbinst/pkg/adapter/restful/gin/metrics"
	"github.com/momeni/dbinst/pkg/adapter/restful/gin/serdser"
	"github.com/momeni/dbinst/pkg/core/cerr"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/momeni/dbinst/pkg/core/usecase/upgradeuc"
)

// UseCase lists the upgrade use cases which are exposed by the
// resource. It is satisfied by *upgradeuc.UseCase.
type UseCase interface {
	List(ctx context.Context) ([]model.InstanceStatus, error)
	Status(ctx context.Context, name string) (*model.InstanceStatus, error)
	UpgradeLocal(
		ctx context.Context, req upgradeuc.LocalRequest,
	) (*model.UpgradeReport, error)
	Revert(
		ctx context.Context, name string, ignoreMarker bool,
	) (*upgradeuc.RevertReport, error)
}

var _ UseCase = (*upgradeuc.UseCase)(nil)

// ErrBusy is reported when another upgrade or revert of the same
// instance is being served.
var ErrBusy = errors.New("another operation on this instance is running")

type resource struct {
	uc      UseCase
	metrics *metrics.Metrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Register instantiates a resource adapting the upgrade use cases with
// the relevant REST APIs including:
//  1. GET request to /instances for the status of all instances,
//  2. GET request to /instances/:name for the instance status,
//  3. POST request to /instances/:name/upgrade in order to upgrade
//     the instance non-interactively, and
//  4. POST request to /instances/:name/revert in order to revert an
//     incomplete upgrade.
//
// Upgrade and revert requests of one instance are served one at a
// time, while a concurrent request is rejected with 409.
func Register(r *gin.RouterGroup, uc UseCase, m *metrics.Metrics) {
	rs := &resource{uc: uc, metrics: m, locks: make(map[string]*sync.Mutex)}
	r.GET("instances", rs.List)
	r.GET("instances/:name", rs.Status)
	r.POST("instances/:name/upgrade", rs.Upgrade)
	r.POST("instances/:name/revert", rs.Revert)
}

// lock acquires the name instance lock without blocking, returning
// its release function or nil if the lock is held by another request.
func (rs *resource) lock(name string) func() {
	rs.mu.Lock()
	l, ok := rs.locks[name]
	if !ok {
		l = &sync.Mutex{}
		rs.locks[name] = l
	}
	rs.mu.Unlock()
	if !l.TryLock() {
		return nil
	}
	return l.Unlock
}

func (rs *resource) List(c *gin.Context) {
	sts, err := rs.uc.List(c.Request.Context())
	if err != nil {
		serdser.SerErr(c, err)
		return
	}
	resp := make([]*statusResp, 0, len(sts))
	for i := range sts {
		resp = append(resp, serStatus(&sts[i]))
	}
	c.JSON(http.StatusOK, gin.H{"instances": resp})
}

func (rs *resource) Status(c *gin.Context) {
	req := &instanceURI{}
	if !serdser.Bind(c, req, nil) {
		return
	}
	st, err := rs.uc.Status(c.Request.Context(), req.Name)
	if err != nil {
		serdser.SerErr(c, err)
		return
	}
	c.JSON(http.StatusOK, serStatus(st))
}

func (rs *resource) Upgrade(c *gin.Context) {
	req := rs.DserUpgradeReq(c)
	if req == nil {
		return
	}
	unlock := rs.lock(req.Name)
	if unlock == nil {
		serdser.SerErr(c, cerr.Conflict(ErrBusy))
		return
	}
	defer unlock()
	report, err := rs.uc.UpgradeLocal(c.Request.Context(), *req)
	if err != nil {
		rs.observe("failed")
		serdser.SerErr(c, err)
		return
	}
	rs.observe(report.Action.String())
	c.JSON(http.StatusOK, serReport(report))
}

func (rs *resource) Revert(c *gin.Context) {
	req := &revertReq{}
	if !serdser.Bind(c, req, nil) {
		return
	}
	if c.Request.ContentLength != 0 && !serdser.Bind(c, req, binding()) {
		return
	}
	unlock := rs.lock(req.Name)
	if unlock == nil {
		serdser.SerErr(c, cerr.Conflict(ErrBusy))
		return
	}
	defer unlock()
	rr, err := rs.uc.Revert(c.Request.Context(), req.Name, req.IgnoreMarker)
	if err != nil {
		serdser.SerErr(c, fmt.Errorf("reverting %q: %w", req.Name, err))
		return
	}
	c.JSON(http.StatusOK, serRevert(rr))
}

func (rs *resource) observe(outcome string) {
	if rs.metrics != nil {
		rs.metrics.ObserveUpgrade(outcome)
	}
}
