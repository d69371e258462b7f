// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package log_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/goccy/go-json"
	"github.com/momeni/dbinst/pkg/core/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextAttrsAreLogged(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	buf := &bytes.Buffer{}
	require.NoError(t, log.Setup(buf, "debug", "json"))
	ctx := log.NewContext(context.Background(), log.Instance("main"))
	ctx = log.NewContext(ctx, slog.String("request", "r1"))
	log.Debug(ctx, "hello", log.Err("err", nil))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "main", rec["instance"])
	assert.Equal(t, "r1", rec["request"])
	assert.Equal(t, "no-error", rec["err"])
}

func TestSetupLevel(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	buf := &bytes.Buffer{}
	require.NoError(t, log.Setup(buf, "warn", "text"))
	log.Info(context.Background(), "dropped")
	assert.Zero(t, buf.Len())
	log.Warn(context.Background(), "kept")
	assert.Contains(t, buf.String(), "msg=kept")

	assert.Error(t, log.Setup(buf, "loud", "text"))
	assert.Error(t, log.Setup(buf, "info", "xml"))
}
