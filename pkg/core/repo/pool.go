// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package repo

import "context"

// ConnHandler is a function which is called with a dedicated
// connection. The connection is returned to its pool afterwards, so it
// must not be kept by the handler.
type ConnHandler func(context.Context, Conn) error

// Pool represents a pool of connections to one database of a server.
// It is safe for concurrent use.
type Pool interface {
	// Conn takes a connection from the pool and calls handler with it.
	Conn(ctx context.Context, handler ConnHandler) error
}
