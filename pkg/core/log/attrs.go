// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package log

import (
	"fmt"
	"log/slog"
)

// Valuer returns an Attr for the given slog.LogValuer value.
func Valuer(key string, value slog.LogValuer) slog.Attr {
	return slog.Any(key, value)
}

// Err returns an Attr for the given error value.
// The error value is resolved as a string by its Error() method.
// If error value is nil, the constant "no-error" value will be used.
func Err(key string, value error) slog.Attr {
	if value == nil {
		return slog.String(key, "no-error")
	}
	return slog.String(key, value.Error())
}

// Instance returns an Attr for an instance name.
func Instance(name string) slog.Attr {
	return slog.String("instance", name)
}

// Path returns an Attr for a filesystem path.
func Path(key, path string) slog.Attr {
	return slog.String(key, path)
}

// Version returns an Attr for a server version.
func Version(key string, v fmt.Stringer) slog.Attr {
	return slog.String(key, v.String())
}
