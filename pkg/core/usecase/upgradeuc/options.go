// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package upgradeuc

import (
	"errors"
	"fmt"
	"time"

	"github.com/momeni/dbinst/pkg/core/repo"
)

// Option is a functional option for the upgrade use case.
type Option func(uc *UseCase) error

// WithRestoreWait option configures how long the restore step waits
// for a freshly initialized server to accept connections.
func WithRestoreWait(d time.Duration) Option {
	return func(uc *UseCase) error {
		if d <= 0 {
			return fmt.Errorf("restore wait (%v) is not positive", d)
		}
		if uc.restoreWait != 0 {
			return errors.New("restore wait is already configured")
		}
		uc.restoreWait = d
		return nil
	}
}

// WithDumpWait option configures how long the dump step waits for
// the instance server to accept connections.
func WithDumpWait(d time.Duration) Option {
	return func(uc *UseCase) error {
		if d <= 0 {
			return fmt.Errorf("dump wait (%v) is not positive", d)
		}
		if uc.dumpWait != 0 {
			return errors.New("dump wait is already configured")
		}
		uc.dumpWait = d
		return nil
	}
}

// WithProjectLocator option enables the check which refuses upgrading
// instances that are used by projects, unless forced.
func WithProjectLocator(pl repo.ProjectLocator) Option {
	return func(uc *UseCase) error {
		if pl == nil {
			return errors.New("project locator is nil")
		}
		uc.projects = pl
		return nil
	}
}

// WithClock option replaces the time source which is used for the
// upgrade and backup metadata timestamps.
func WithClock(now func() time.Time) Option {
	return func(uc *UseCase) error {
		if now == nil {
			return errors.New("clock is nil")
		}
		uc.now = now
		return nil
	}
}

// WithPID option overrides the process id which is recorded in the
// upgrade marker.
func WithPID(pid int) Option {
	return func(uc *UseCase) error {
		if pid <= 0 {
			return fmt.Errorf("pid (%d) is not positive", pid)
		}
		uc.pid = pid
		return nil
	}
}
