// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package repo

import "context"

// TxHandler is a function which is called with an open transaction.
// The transaction is committed if it returns nil and is rolled back
// otherwise.
type TxHandler func(context.Context, Tx) error

// Conn represents one dedicated database connection. Session level
// settings (and the server side state of a COPY) are kept between
// the statements of a Conn. It is unsafe to be used concurrently.
type Conn interface {
	Queryer

	// Tx begins a transaction on this connection and passes it to
	// handler.
	Tx(ctx context.Context, handler TxHandler) error

	// IsConn method prevents a non-Conn object (such as a Tx) to
	// mistakenly implement the Conn interface.
	IsConn()
}
