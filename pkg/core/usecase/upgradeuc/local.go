// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package upgradeuc

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/momeni/dbinst/pkg/core/cerr"
	"github.com/momeni/dbinst/pkg/core/log"
	"github.com/momeni/dbinst/pkg/core/model"
)

// checkMarker refuses an incompatible upgrade before anything (even
// the dump path) is touched if another upgrade is in progress.
func (uc *UseCase) checkMarker(ctx context.Context, up *upgrade) error {
	return uc.backups.checkMarker(up.inst.Name, up.paths)
}

func (uc *UseCase) install(ctx context.Context, up *upgrade) error {
	log.Info(
		ctx, "installing server package",
		log.Instance(up.inst.Name),
		log.Valuer("version", up.pkg.Version),
	)
	install, err := uc.installer.Install(ctx, up.pkg)
	if err != nil {
		return fmt.Errorf("installing %s: %w", up.pkg.Version, err)
	}
	if !install.Version.Equal(up.pkg.Version) {
		return fmt.Errorf(
			"installed build of %s: %w", up.pkg.Name,
			&cerr.MismatchingVersionError{up.pkg.Version, install.Version},
		)
	}
	up.install = install
	return nil
}

// backup moves the data directory aside and switches the instance to
// the new installation, so following steps run the new server.
func (uc *UseCase) backup(ctx context.Context, up *upgrade) error {
	if err := uc.backups.Begin(ctx, up.inst, up.install, up.paths); err != nil {
		return err
	}
	up.inst.Installation = up.install
	return nil
}

func (uc *UseCase) reinitDataDir(ctx context.Context, up *upgrade) error {
	if err := os.MkdirAll(up.paths.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", up.paths.DataDir, err)
	}
	return nil
}

func (uc *UseCase) persistMetadata(ctx context.Context, up *upgrade) error {
	up.inst.Installation = up.install
	return uc.meta.WriteJSON(
		up.paths.InstanceInfoPath(), "new instance metadata", up.inst,
	)
}

// copyTLSMaterial keeps the server certificate and its private key of
// the backup, so clients which pinned the certificate keep working.
// Instances without TLS material have nothing to copy, but a lone
// certificate or key is reported as an error.
func (uc *UseCase) copyTLSMaterial(ctx context.Context, up *upgrade) error {
	names := []string{model.TLSCertFile, model.TLSKeyFile}
	var found []string
	for _, name := range names {
		ok, err := pathExists(filepath.Join(up.paths.BackupDir, name))
		if err != nil {
			return fmt.Errorf("checking %s: %w", name, err)
		}
		if ok {
			found = append(found, name)
		}
	}
	switch len(found) {
	case 0:
		log.Debug(ctx, "no tls material to copy", log.Instance(up.inst.Name))
		return nil
	case 1:
		return fmt.Errorf("backup has %s without its pair", found[0])
	}
	for _, name := range names {
		src := filepath.Join(up.paths.BackupDir, name)
		dst := filepath.Join(up.paths.DataDir, name)
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("copying %s: %w", name, err)
		}
	}
	return nil
}

func (uc *UseCase) register(ctx context.Context, up *upgrade) error {
	return uc.services.Register(ctx, up.inst)
}

func (uc *UseCase) restart(ctx context.Context, up *upgrade) error {
	return uc.services.Restart(ctx, up.inst)
}

func (uc *UseCase) deleteMarker(ctx context.Context, up *upgrade) error {
	if err := os.Remove(up.paths.UpgradeMarker); err != nil {
		return fmt.Errorf("removing %s: %w", up.paths.UpgradeMarker, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	st, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(
		dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, st.Mode().Perm(),
	)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
