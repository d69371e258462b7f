// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package scram implements the SCRAM-SHA-256 and SCRAM-SHA-1 verifier
// generation on top of the github.com/xdg-go/scram module.
// Generated verifiers can be passed to PostgreSQL wherever a password
// is expected (e.g., CREATE ROLE or the initdb password file) and the
// server stores them as is.
package scram

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/momeni/dbinst/pkg/core/scram"
	xscram "github.com/xdg-go/scram"
)

// DefaultIters is the iterations count which is used by Verifier.
// RFC 7677 recommends 15000 or more.
const DefaultIters = 15000

// Mechanism is a SCRAM verifier generator with a fixed hash function.
type Mechanism struct {
	hashGenerator xscram.HashGeneratorFcn
	outLen        int // bytes
	name          string
}

var _ scram.Hasher = (*Mechanism)(nil)

// SHA1 returns a Mechanism using SHA1.
func SHA1() *Mechanism {
	return &Mechanism{
		hashGenerator: xscram.SHA1,
		outLen:        160 / 8,
		name:          "SCRAM-SHA-1",
	}
}

// SHA256 returns a Mechanism using SHA256.
func SHA256() *Mechanism {
	return &Mechanism{
		hashGenerator: xscram.SHA256,
		outLen:        256 / 8,
		name:          "SCRAM-SHA-256",
	}
}

// ByName returns the Mechanism which is known by PostgreSQL with the
// given authentication method name. An empty name selects SHA256.
func ByName(name string) (*Mechanism, error) {
	switch name {
	case "", "scram-sha-256":
		return SHA256(), nil
	case "scram-sha-1":
		return SHA1(), nil
	default:
		return nil, fmt.Errorf("unsupported auth method: %q", name)
	}
}

// Hash computes a verifier for pass. See scram.Hasher for the format.
// The password is normalized with the SASLprep profile (RFC 4013) and
// normalization failures are returned as errors.
func (m *Mechanism) Hash(pass, salt string, iters int) (string, error) {
	switch {
	case pass == "":
		return "", errors.New("password must be non-empty")
	case iters < 4096:
		return "", fmt.Errorf("iters (%d) is less than 4096", iters)
	}
	if salt == "" {
		saltBytes := make([]byte, m.outLen)
		if _, err := rand.Read(saltBytes); err != nil {
			return "", fmt.Errorf("creating random salt: %w", err)
		}
		salt = base64.StdEncoding.EncodeToString(saltBytes)
	}
	saltBytes, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return "", fmt.Errorf("decoding base64 salt: %w", err)
	}
	c, err := m.hashGenerator.NewClient("", pass, "")
	if err != nil {
		return "", fmt.Errorf("creating SCRAM client: %w", err)
	}
	sc := c.GetStoredCredentials(xscram.KeyFactors{
		Salt:  string(saltBytes),
		Iters: iters,
	})
	return fmt.Sprintf(
		"%s$%d:%s$%s:%s",
		m.name,
		iters, salt,
		base64.StdEncoding.EncodeToString(sc.StoredKey),
		base64.StdEncoding.EncodeToString(sc.ServerKey),
	), nil
}

// Verifier hashes pass with a random salt and DefaultIters.
func (m *Mechanism) Verifier(pass string) (string, error) {
	return m.Hash(pass, "", DefaultIters)
}

// WritePasswordFile writes the verifier of pass into path, readable
// only by the current user. The file can be passed to initdb with its
// --pwfile option.
func WritePasswordFile(h scram.Hasher, path, pass string) error {
	v, err := h.Hash(pass, "", DefaultIters)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating %q: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(v+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing %q: %w", path, err)
	}
	return nil
}
