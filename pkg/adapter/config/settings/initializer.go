// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package settings

// Default makes a nil (*t) point to a copy of dflt. A non-nil (*t) is
// kept, even if it points to the zero value, so an explicit setting
// always wins over the default.
func Default[T any](t **T, dflt T) {
	if *t == nil {
		*t = &dflt
	}
}
