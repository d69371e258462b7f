// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package upgradeuc_test

import (
	"fmt"
	"testing"

	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/momeni/dbinst/pkg/core/usecase/upgradeuc"
	"github.com/stretchr/testify/assert"
)

var sampleVersions = []string{
	"14.11", "15.0", "15.2", "15.4", "16.0-dev.7", "16.0-dev.9",
	"16.0-rc.1", "16.0", "16.1", "17.0-dev.2",
}

func eachPair(t *testing.T, visit func(t *testing.T, cur, tgt model.Version)) {
	for _, a := range sampleVersions {
		for _, b := range sampleVersions {
			cur, tgt := v(a), v(b)
			t.Run(fmt.Sprintf("%s->%s", a, b), func(t *testing.T) {
				visit(t, cur, tgt)
			})
		}
	}
}

func TestIsNoop(t *testing.T) {
	eachPair(t, func(t *testing.T, cur, tgt model.Version) {
		assert.Equal(t, tgt.Compare(cur) <= 0, upgradeuc.IsNoop(cur, tgt, false))
		assert.False(t, upgradeuc.IsNoop(cur, tgt, true), "force never skips")
	})
}

func TestClassify(t *testing.T) {
	eachPair(t, func(t *testing.T, cur, tgt model.Version) {
		a := assert.New(t)
		plain := upgradeuc.Classify(cur, tgt, false, false, false)
		if tgt.IsCompatible(cur) {
			a.Equal(model.CompatiblePath, plain)
			a.Equal(model.CompatiblePath,
				upgradeuc.Classify(cur, tgt, true, false, false),
				"force alone keeps the compatible path")
			a.Equal(model.CompatiblePath,
				upgradeuc.Classify(cur, tgt, false, true, false),
				"a version option alone keeps the compatible path")
		} else {
			a.Equal(model.IncompatiblePath, plain)
		}
		a.Equal(model.IncompatiblePath,
			upgradeuc.Classify(cur, tgt, false, false, true))
		a.Equal(model.IncompatiblePath,
			upgradeuc.Classify(cur, tgt, true, true, false))
	})
}
