// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package instancesrs

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gbinding "github.com/gin-gonic/gin/binding"
	"github.com/momeni/dbinst/pkg/adapter/restful/gin/serdser"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/momeni/dbinst/pkg/core/usecase/upgradeuc"
)

type instanceURI struct {
	Name string `uri:"name" binding:"required,max=64"`
}

type rawUpgradeReq struct {
	Name string `uri:"name" json:"-" binding:"required,max=64"`

	ToLatest  bool   `json:"to_latest"`
	ToNightly bool   `json:"to_nightly"`
	ToTesting bool   `json:"to_testing"`
	ToChannel string `json:"to_channel" binding:"omitempty,oneof=stable testing nightly"`
	ToVersion string `json:"to_version" binding:"omitempty,max=64"`

	Force            bool `json:"force"`
	ForceDumpRestore bool `json:"force_dump_restore"`
}

type revertReq struct {
	Name         string `uri:"name" json:"-" binding:"required,max=64"`
	IgnoreMarker bool   `json:"ignore_marker"`
}

func binding() gbinding.Binding {
	return gbinding.JSON
}

// DserUpgradeReq decodes an upgrade request. An empty body selects the
// default target version of the instance.
func (rs *resource) DserUpgradeReq(c *gin.Context) *upgradeuc.LocalRequest {
	req := &rawUpgradeReq{}
	if !serdser.Bind(c, req, nil) {
		return nil
	}
	if c.Request.ContentLength != 0 && !serdser.Bind(c, req, binding()) {
		return nil
	}
	opts := model.QueryOptions{
		Latest:  req.ToLatest,
		Nightly: req.ToNightly,
		Testing: req.ToTesting,
		Channel: req.ToChannel,
		Version: req.ToVersion,
	}
	stable := func() (model.VersionQuery, error) {
		return model.StableQuery(), nil
	}
	if _, _, err := model.FromOptions(opts, stable); err != nil {
		var errs map[string][]string
		serdser.AddErr(&errs, "to_*", err.Error())
		c.JSON(http.StatusBadRequest, errs)
		return nil
	}
	return &upgradeuc.LocalRequest{
		Name:             req.Name,
		Query:            opts,
		Force:            req.Force,
		ForceDumpRestore: req.ForceDumpRestore,
	}
}

type markerResp struct {
	Source  string    `json:"source"`
	Target  string    `json:"target"`
	Started time.Time `json:"started"`
	PID     int       `json:"pid"`
	Attempt string    `json:"attempt"`
}

type statusResp struct {
	Name          string      `json:"name"`
	Version       string      `json:"version"`
	Port          int         `json:"port"`
	DataDir       string      `json:"data_dir"`
	DataDirExists bool        `json:"data_dir_exists"`
	NeedsRevert   bool        `json:"needs_revert"`
	Marker        *markerResp `json:"upgrade_marker,omitempty"`
	BackupTime    *time.Time  `json:"backup_timestamp,omitempty"`
	Projects      []string    `json:"projects,omitempty"`
}

func serStatus(st *model.InstanceStatus) *statusResp {
	v, _ := st.Instance.Version()
	resp := &statusResp{
		Name:          st.Instance.Name,
		Version:       v.String(),
		Port:          st.Instance.Port,
		DataDir:       st.Paths.DataDir,
		DataDirExists: st.DataDirExists,
		NeedsRevert:   st.NeedsRevert(),
		Projects:      st.Projects,
	}
	if m := st.Marker; m != nil {
		resp.Marker = &markerResp{
			Source:  m.Source.String(),
			Target:  m.Target.String(),
			Started: m.Started,
			PID:     m.PID,
			Attempt: m.Attempt.String(),
		}
	}
	if st.Backup != nil {
		ts := st.Backup.Timestamp
		resp.BackupTime = &ts
	}
	return resp
}

type reportResp struct {
	*model.UpgradeReport
	Warnings []string `json:"warnings,omitempty"`
}

func serReport(r *model.UpgradeReport) *reportResp {
	resp := &reportResp{UpgradeReport: r}
	for _, w := range r.Warnings {
		resp.Warnings = append(resp.Warnings, w.Error())
	}
	return resp
}

type revertResp struct {
	Instance   string    `json:"instance"`
	Version    string    `json:"version"`
	BackupTime time.Time `json:"backup_timestamp"`
	Warnings   []string  `json:"warnings,omitempty"`
}

func serRevert(rr *upgradeuc.RevertReport) *revertResp {
	resp := &revertResp{
		Instance:   rr.Instance,
		Version:    rr.Version.String(),
		BackupTime: rr.Backup.Timestamp,
	}
	for _, w := range rr.Warnings {
		resp.Warnings = append(resp.Warnings, w.Error())
	}
	return resp
}
