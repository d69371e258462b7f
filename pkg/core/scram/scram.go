// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package scram exports the expected interface of a Salted Challenge
// Response Authentication Mechanism (SCRAM) verifier generator. The
// implementation lives in the adapter layer.
//
// Only the generation of stored verifiers is needed. When a fresh data
// directory is initialized for a restore, the administrator password
// of the new server is handed over as a verifier, so the plaintext
// password is never written to the disk next to the data directory.
// The client and server conversations are handled by the PostgreSQL
// server and its driver.
package scram

// Hasher computes SCRAM verifiers for a fixed underlying hash function
// (e.g., SHA1 or SHA256).
type Hasher interface {
	// Hash computes a verifier with the following format
	//
	//	SCRAM-{SHA-X}${iters}:{b64-salt}${b64-storedKey}:{b64-serverKey}
	//
	// The pass must be non-empty and iters must be at least 4096.
	// An empty salt asks for a random salt, otherwise, salt must be
	// a base64 encoded byte string.
	Hash(pass, salt string, iters int) (string, error)
}
