// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package gin wraps the gin-gonic engine for the REST agent, so other
// packages may create an engine with the agent middlewares without
// depending on gin-gonic directly.
package gin

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/momeni/dbinst/pkg/core/log"
)

type HandlerFunc = gin.HandlerFunc
type Engine = gin.Engine

// RequestIDHeader is echoed back to the clients and is logged with
// all records of a request.
const RequestIDHeader = "X-Request-ID"

func New(middlewares ...HandlerFunc) *Engine {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(middlewares...)
	return e
}

// Logger logs one record per request using the default slog logger.
// The request context carries a request_id attribute, so the records
// of the use cases which serve it can be correlated.
func Logger() HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(RequestIDHeader, reqID)
		ctx := log.NewContext(
			c.Request.Context(), slog.String("request_id", reqID),
		)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("elapsed", time.Since(start)),
		}
		if errs := c.Errors.String(); errs != "" {
			attrs = append(attrs, slog.String("errors", errs))
		}
		switch {
		case status >= 500:
			log.Error(ctx, "request failed", attrs...)
		case status >= 400:
			log.Warn(ctx, "request rejected", attrs...)
		default:
			log.Info(ctx, "request served", attrs...)
		}
	}
}

func Recovery() HandlerFunc {
	return gin.Recovery()
}
