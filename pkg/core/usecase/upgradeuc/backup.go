// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package upgradeuc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/momeni/dbinst/pkg/core/cerr"
	"github.com/momeni/dbinst/pkg/core/log"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/momeni/dbinst/pkg/core/repo"
)

// BackupManager moves a data directory aside before an incompatible
// upgrade and moves it back when the upgrade is reverted. The upgrade
// marker file is its only synchronization means, so two processes
// never move the same data directory concurrently unless a marker was
// removed by hand.
type BackupManager struct {
	meta repo.MetaStore
	now  func() time.Time
	pid  int
}

// NewBackupManager instantiates a BackupManager which persists its
// metadata records using meta, timestamps them using now, and records
// pid as the upgrading process id.
func NewBackupManager(
	meta repo.MetaStore, now func() time.Time, pid int,
) *BackupManager {
	return &BackupManager{meta: meta, now: now, pid: pid}
}

// Begin starts the backup of inst data directory for an upgrade to
// the install build. It fails with a *cerr.UpgradeInProgressError if
// the upgrade marker exists, without touching anything. Otherwise, it
// writes the upgrade marker, writes the backup metadata into the data
// directory, removes a stale backup directory (if any), and renames
// the data directory to the backup directory, in this order.
// After a successful return, the data directory does not exist.
func (bm *BackupManager) Begin(
	ctx context.Context,
	inst *model.InstanceInfo,
	install *model.InstallInfo,
	paths model.Paths,
) error {
	if err := bm.checkMarker(inst.Name, paths); err != nil {
		return err
	}
	source, err := inst.Version()
	if err != nil {
		return err
	}
	um := model.UpgradeMeta{
		Source:  source,
		Target:  install.Version,
		Started: bm.now(),
		PID:     bm.pid,
		Attempt: uuid.New(),
	}
	err = bm.meta.WriteJSON(paths.UpgradeMarker, "upgrade marker", &um)
	if err != nil {
		return err
	}
	bmeta := model.BackupMeta{Timestamp: bm.now()}
	bpath := filepath.Join(paths.DataDir, model.BackupMetaFile)
	if err := bm.meta.WriteJSON(bpath, "backup metadata", &bmeta); err != nil {
		return err
	}
	if exists, err := pathExists(paths.BackupDir); err != nil {
		return err
	} else if exists {
		log.Info(
			ctx, "removing stale backup",
			log.Instance(inst.Name), log.Path("dir", paths.BackupDir),
		)
		if err := os.RemoveAll(paths.BackupDir); err != nil {
			return fmt.Errorf("removing stale backup: %w", err)
		}
	}
	if err := os.Rename(paths.DataDir, paths.BackupDir); err != nil {
		return fmt.Errorf("moving data directory aside: %w", err)
	}
	log.Info(
		ctx, "data directory is backed up",
		log.Instance(inst.Name),
		log.Path("backup", paths.BackupDir),
		slog.String("attempt", um.Attempt.String()),
	)
	return nil
}

func (bm *BackupManager) checkMarker(name string, paths model.Paths) error {
	exists, err := pathExists(paths.UpgradeMarker)
	if err != nil {
		return fmt.Errorf("checking upgrade marker: %w", err)
	}
	if !exists {
		return nil
	}
	e := &cerr.UpgradeInProgressError{
		Instance: name, Marker: paths.UpgradeMarker,
	}
	var um model.UpgradeMeta
	if err := bm.meta.ReadJSON(paths.UpgradeMarker, "upgrade marker", &um); err == nil {
		e.Meta = &um
	}
	return e
}

// ErrNoUpgradeInProgress indicates that revert was requested while
// there is no upgrade marker.
var ErrNoUpgradeInProgress = errors.New(
	"no upgrade in progress; use --ignore-marker to revert anyway",
)

// ErrNoBackup indicates that there is no complete backup to revert to.
var ErrNoBackup = errors.New("no backup found")

// Revert restores the data directory from its backup. The backup
// directory must contain the backup metadata file. The (possibly
// half-created) data directory is removed, the backup is renamed back,
// and finally the upgrade marker is removed if it exists. Callers
// decide whether a missing marker permits the revert.
func (bm *BackupManager) Revert(
	ctx context.Context, name string, paths model.Paths,
) (*model.BackupMeta, error) {
	bpath := filepath.Join(paths.BackupDir, model.BackupMetaFile)
	var bmeta model.BackupMeta
	if err := bm.meta.ReadJSON(bpath, "backup metadata", &bmeta); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, cerr.NotFound(fmt.Errorf("%w at %s", ErrNoBackup, paths.BackupDir))
		}
		return nil, err
	}
	if err := os.RemoveAll(paths.DataDir); err != nil {
		return nil, fmt.Errorf("removing data directory: %w", err)
	}
	if err := os.Rename(paths.BackupDir, paths.DataDir); err != nil {
		return nil, fmt.Errorf("restoring backup: %w", err)
	}
	bpath = filepath.Join(paths.DataDir, model.BackupMetaFile)
	if err := os.Remove(bpath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("removing backup metadata: %w", err)
	}
	if err := removeIfExists(paths.UpgradeMarker); err != nil {
		return nil, fmt.Errorf("removing upgrade marker: %w", err)
	}
	log.Info(
		ctx, "data directory is reverted",
		log.Instance(name),
		slog.Time("backup_timestamp", bmeta.Timestamp),
	)
	return &bmeta, nil
}

// Discard removes the backup directory of a completed upgrade.
func (bm *BackupManager) Discard(
	ctx context.Context, name string, paths model.Paths,
) error {
	if err := bm.checkMarker(name, paths); err != nil {
		return err
	}
	exists, err := pathExists(paths.BackupDir)
	if err != nil {
		return err
	}
	if !exists {
		return cerr.NotFound(fmt.Errorf("%w at %s", ErrNoBackup, paths.BackupDir))
	}
	if err := os.RemoveAll(paths.BackupDir); err != nil {
		return fmt.Errorf("removing backup: %w", err)
	}
	log.Info(ctx, "backup is discarded", log.Instance(name))
	return nil
}

func pathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
