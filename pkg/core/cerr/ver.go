// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cerr

import (
	"fmt"

	"github.com/momeni/dbinst/pkg/core/model"
)

// MismatchingVersionError indicates an error condition where a specific
// version was expected, but another version was present. The first
// element is the expected version and the second element is the actual
// version.
type MismatchingVersionError [2]model.Version

// Error returns a string representation of `mve` error instance.
func (mve *MismatchingVersionError) Error() string {
	return fmt.Sprintf(
		"expected v%s, but got v%s", mve[0].String(), mve[1].String(),
	)
}
