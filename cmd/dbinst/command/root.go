// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package command provides the root and sub-commands of the dbinst
// project. Commands are organized using the cobra library.
// The "instance" sub-command groups the upgrade related actions while
// the "serve" sub-command starts the REST agent and the "config"
// sub-command inspects or creates the configuration file.
//
//	./dbinst instance upgrade -I name [--to-latest|--to-version=16]
//	./dbinst instance upgrade -I org/name --non-interactive
//	./dbinst instance revert -I name [--ignore-marker]
//	./dbinst instance status -I name
//	./dbinst instance discard-backup -I name
//	./dbinst serve [-c /path/of/config.yaml]
//	./dbinst config show|init
package command

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/momeni/dbinst/pkg/adapter/config"
	"github.com/momeni/dbinst/pkg/adapter/config/cfg1"
	"github.com/momeni/dbinst/pkg/core/cerr"
	"github.com/spf13/cobra"
)

var cfgPath string

// loadedConfig is filled by the PersistentPreRunE of rootCmd, before
// any sub-command runs.
var loadedConfig *cfg1.Config

var rootCmd = &cobra.Command{
	Use:   "dbinst",
	Short: "Upgrade local and cloud hosted database instances",
	Long: `Upgrade local and cloud hosted database instances.
A local instance is upgraded either in place (when the new server can
use the existing data directory) or by dumping its databases, starting
a fresh server of the new version, and restoring the dump. In both
cases, the old data directory is preserved as a backup until the new
server is fully operational, so an incomplete upgrade can be reverted.
A cloud instance (named as org/name) is upgraded by its control plane.

The configuration file is read from the -c flag, the DBINST_CONFIG
environment variable, or the user configuration directory (in this
order). A missing default configuration file is not an error.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config.Load(%q): %w", cfgPath, err)
	}
	if err := c.SetupLogging(cmd.ErrOrStderr()); err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	loadedConfig = c
	return nil
}

// Execute runs the rootCmd which in turn parses CLI arguments and
// flags and runs the most specific cobra command. The exit code is
// chosen by cerr.ExitCode, so failures which left an instance in
// need of a manual revert can be told apart by scripts.
func Execute() {
	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		msg := err.Error()
		// status codes are meant for the REST clients
		if ce, ok := err.(*cerr.Error); ok {
			msg = ce.Err.Error()
		}
		fmt.Fprintln(os.Stderr, "error:", msg)
		if cmd := cerr.RevertCommandOf(err); cmd != "" {
			fmt.Fprintf(os.Stderr, "To undo run:\n  %s\n", cmd)
		}
	}
	os.Exit(cerr.ExitCode(err))
}

func init() {
	rootCmd.PersistentFlags().StringVarP(
		&cfgPath, "config", "c", "",
		"config file path (default $"+config.PathEnv+
			" or the user config dir)",
	)
}
