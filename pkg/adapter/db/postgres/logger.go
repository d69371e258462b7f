// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/momeni/dbinst/pkg/core/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Logger forwards GORM logs to the default slog logger.
// Statements are logged at the debug level, slow statements at the
// warning level, and failed statements at the error level.
type Logger struct {
	level         logger.LogLevel
	slowThreshold time.Duration
}

var _ logger.Interface = (*Logger)(nil)

// NewLogger creates a Logger which warns about statements which take
// longer than slowThreshold.
func NewLogger(slowThreshold time.Duration) *Logger {
	return &Logger{level: logger.Info, slowThreshold: slowThreshold}
}

// LogMode returns a copy of l with the given level.
func (l *Logger) LogMode(level logger.LogLevel) logger.Interface {
	ll := *l
	ll.level = level
	return &ll
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= logger.Info {
		log.Info(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= logger.Warn {
		log.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= logger.Error {
		log.Error(ctx, fmt.Sprintf(msg, args...))
	}
}

var passwordRegex = regexp.MustCompile(`(?i)(PASSWORD\s+)'(?:[^']|'')*'`)

// redact hides the role passwords which are set by sql.
func redact(sql string) string {
	return passwordRegex.ReplaceAllString(sql, "${1}'***'")
}

// Trace logs one executed statement.
func (l *Logger) Trace(
	ctx context.Context,
	begin time.Time,
	fc func() (sql string, rowsAffected int64),
	err error,
) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= logger.Error &&
		!errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		sql = redact(sql)
		log.Error(
			ctx, "statement failed",
			slog.String("sql", sql), slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed), log.Err("err", err),
		)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold &&
		l.level >= logger.Warn:
		sql, rows := fc()
		sql = redact(sql)
		log.Warn(
			ctx, "slow statement",
			slog.String("sql", sql), slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
		)
	case l.level >= logger.Info:
		sql, rows := fc()
		sql = redact(sql)
		log.Debug(
			ctx, "statement",
			slog.String("sql", sql), slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
		)
	}
}
