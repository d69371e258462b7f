// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package process hosts instance servers as plain child processes.
// It provides a repo.ServerRunner which keeps a server alive for the
// duration of a unit of work, and a repo.ServiceController which can
// be used when no service manager is available. Both of them start
// the server executable of the current installation of an instance
// with the arguments which are computed by the ServerArgs function,
// so the systemd adapter can reuse the same command line.
package process

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/momeni/dbinst/pkg/core/repo"
)

// Names of the files which are kept in an instance runtime directory.
const (
	LogFile      = "server.log"
	PasswordFile = "bootstrap.pw"
)

// pidFile is written by the server into its data directory.
const pidFile = "postmaster.pid"

// ServerArgs returns the server executable and its arguments for
// running inst. The server always listens on a unix socket in the
// runtime directory. In the normal mode, it also listens on localhost
// and enables TLS if the certificate and key files exist in the data
// directory. In the bootstrap mode, only the unix socket is opened,
// so nothing but the restoring client can connect.
func ServerArgs(
	inst *model.InstanceInfo, paths model.Paths, mode repo.ServerMode,
) (string, []string, error) {
	if inst.Installation == nil {
		return "", nil, model.ErrNotInstalled
	}
	listen := "localhost"
	if mode == repo.BootstrapMode {
		listen = ""
	}
	args := []string{
		"-D", paths.DataDir,
		"-k", paths.RuntimeDir,
		"-p", strconv.Itoa(inst.Port),
		"-c", "listen_addresses=" + listen,
	}
	if mode == repo.NormalMode && hasTLSMaterial(paths.DataDir) {
		args = append(args,
			"-c", "ssl=on",
			"-c", "ssl_cert_file="+model.TLSCertFile,
			"-c", "ssl_key_file="+model.TLSKeyFile,
		)
	}
	return inst.Installation.ServerBinary("postgres"), args, nil
}

func hasTLSMaterial(dataDir string) bool {
	for _, name := range []string{model.TLSCertFile, model.TLSKeyFile} {
		if _, err := os.Stat(filepath.Join(dataDir, name)); err != nil {
			return false
		}
	}
	return true
}

// RunningPID returns the process id which is recorded by a running
// server in dataDir. The ok result is false if no live server owns
// the data directory.
func RunningPID(dataDir string) (pid int, ok bool, err error) {
	f, err := os.Open(filepath.Join(dataDir, pidFile))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("opening pid file: %w", err)
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	if !s.Scan() {
		return 0, false, fmt.Errorf("empty pid file: %w", s.Err())
	}
	pid, err = strconv.Atoi(strings.TrimSpace(s.Text()))
	if err != nil || pid <= 0 {
		return 0, false, fmt.Errorf("malformed pid file %q", s.Text())
	}
	return pid, alive(pid), nil
}

func openLog(paths model.Paths) (*os.File, error) {
	if err := os.MkdirAll(paths.RuntimeDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating runtime dir: %w", err)
	}
	return os.OpenFile(
		filepath.Join(paths.RuntimeDir, LogFile),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600,
	)
}
