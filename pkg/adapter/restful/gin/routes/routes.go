// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package routes registers all resources of the REST agent on a
// gin-gonic engine.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/momeni/dbinst/pkg/adapter/restful/gin/instancesrs"
	"github.com/momeni/dbinst/pkg/adapter/restful/gin/metrics"
)

// Register adds the instances resource under /api/dbinst/v1 and the
// metrics endpoint to the e engine. The metrics middleware must be
// installed before the routes, so it is added here too.
func Register(e *gin.Engine, uc instancesrs.UseCase, m *metrics.Metrics) {
	e.Use(m.Middleware())
	e.GET("/metrics", m.Handler())
	r := e.Group("/api/dbinst/v1")
	instancesrs.Register(r, uc, m)
}
