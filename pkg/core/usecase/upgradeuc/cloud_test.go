// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package upgradeuc_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/momeni/dbinst/pkg/core/cerr"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/momeni/dbinst/pkg/core/usecase/upgradeuc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCloud(t *testing.T, current string) (*upgradeuc.CloudUseCase, *fakeCloud) {
	fc := &fakeCloud{
		inst: &model.CloudInstance{
			Org: "acme", Name: "prod", Version: v(current),
		},
		versions: []model.Version{v("15.4"), v("16.1"), v("17.0-dev.3")},
	}
	cuc, err := upgradeuc.NewCloud(fc)
	require.NoError(t, err)
	return cuc, fc
}

func TestUpgradeCloud(t *testing.T) {
	ctx := context.Background()
	stable := model.StableQuery()
	never := func(model.Version) (bool, error) {
		t.Error("confirmation must not be asked")
		return false, nil
	}

	t.Run("up to date", func(t *testing.T) {
		cuc, fc := newCloud(t, "16.1")
		res, err := cuc.UpgradeCloud(ctx, "acme", "prod", stable, false, never)
		require.NoError(t, err)
		assert.Equal(t, model.ActionNone, res.Action)
		assert.Equal(t, "16.1", res.RequestedVersion.String())
		assert.Empty(t, fc.requests)
	})

	t.Run("cancelled", func(t *testing.T) {
		cuc, fc := newCloud(t, "15.4")
		var asked model.Version
		res, err := cuc.UpgradeCloud(ctx, "acme", "prod", stable, false,
			func(target model.Version) (bool, error) {
				asked = target
				return false, nil
			})
		require.NoError(t, err)
		assert.Equal(t, model.ActionCancelled, res.Action)
		assert.Equal(t, "16.1", asked.String())
		assert.Empty(t, fc.requests)
	})

	t.Run("upgraded", func(t *testing.T) {
		cuc, fc := newCloud(t, "15.4")
		yes := func(model.Version) (bool, error) { return true, nil }
		res, err := cuc.UpgradeCloud(ctx, "acme", "prod", stable, false, yes)
		require.NoError(t, err)
		assert.Equal(t, model.ActionUpgraded, res.Action)
		assert.Equal(t, "15.4", res.PriorVersion.String())
		require.Len(t, fc.requests, 1)
		assert.Equal(t, "16.1", fc.requests[0].Version.String())
		assert.False(t, fc.requests[0].Force)
	})

	t.Run("forced same version", func(t *testing.T) {
		cuc, fc := newCloud(t, "16.1")
		yes := func(model.Version) (bool, error) { return true, nil }
		res, err := cuc.UpgradeCloud(ctx, "acme", "prod", stable, true, yes)
		require.NoError(t, err)
		assert.Equal(t, model.ActionUpgraded, res.Action)
		require.Len(t, fc.requests, 1)
		assert.True(t, fc.requests[0].Force)
	})

	t.Run("confirmation error", func(t *testing.T) {
		cuc, fc := newCloud(t, "15.4")
		boom := errors.New("no tty")
		_, err := cuc.UpgradeCloud(ctx, "acme", "prod", stable, false,
			func(model.Version) (bool, error) { return false, boom })
		assert.True(t, errors.Is(err, boom))
		assert.Empty(t, fc.requests)
	})

	t.Run("not found", func(t *testing.T) {
		cuc, fc := newCloud(t, "15.4")
		_, err := cuc.UpgradeCloud(ctx, "acme", "staging", stable, false, never)
		var ce *cerr.Error
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, http.StatusNotFound, ce.HTTPStatusCode)
		assert.Empty(t, fc.requests)
	})
}

func TestCloudQuery(t *testing.T) {
	q, err := upgradeuc.CloudQuery(model.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.StableQuery(), q)
	q, err = upgradeuc.CloudQuery(model.QueryOptions{Nightly: true})
	require.NoError(t, err)
	assert.Equal(t, model.ChannelNightly, q.Channel)
}
