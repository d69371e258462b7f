// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build !unix

package process

import (
	"os"
	"os/exec"
)

func detach(cmd *exec.Cmd) {
}

// interrupt kills p because signals other than kill cannot be sent on
// this platform.
func interrupt(p *os.Process) error {
	return p.Kill()
}

func alive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}
