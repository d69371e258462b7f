// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package command

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/momeni/dbinst/pkg/core/usecase/upgradeuc"
	"github.com/spf13/cobra"
)

var revertFlags struct {
	instance     string
	ignoreMarker bool
}

var revertCmd = &cobra.Command{
	Use:   "revert [name]",
	Short: "Revert an incomplete upgrade",
	Long: `Revert an incomplete upgrade by putting the backup data directory
back in place of the current data directory. The instance server is
stopped beforehand and started afterwards.
The backup is only accepted while the upgrade marker exists, unless
the --ignore-marker flag is given.`,
	RunE: revert,
}

func revert(cmd *cobra.Command, args []string) error {
	name, err := localName(revertFlags.instance, args)
	if err != nil {
		return err
	}
	uc, err := loadedConfig.NewUpgradeUseCase()
	if err != nil {
		return fmt.Errorf("creating upgrade use case: %w", err)
	}
	r, err := uc.Revert(cmd.Context(), name, revertFlags.ignoreMarker)
	if err != nil {
		return err
	}
	printRevertReport(cmd.OutOrStdout(), cmd.ErrOrStderr(), r)
	return nil
}

func printRevertReport(out, errOut io.Writer, r *upgradeuc.RevertReport) {
	for _, w := range r.Warnings {
		fmt.Fprintln(errOut, "warning:", w)
	}
	fmt.Fprintf(
		out, "Instance %q is reverted to version %s using the backup "+
			"which was taken %s.\n",
		r.Instance, r.Version, humanize.Time(r.Backup.Timestamp),
	)
}

var discardFlags struct {
	instance string
}

var discardBackupCmd = &cobra.Command{
	Use:   "discard-backup [name]",
	Short: "Remove the backup of a completed upgrade",
	Long: `Remove the data directory which was preserved by an upgrade.
It is refused while an upgrade is in progress (or left incomplete),
so the backup of an instance which needs a revert is never removed.`,
	RunE: discardBackup,
}

func discardBackup(cmd *cobra.Command, args []string) error {
	name, err := localName(discardFlags.instance, args)
	if err != nil {
		return err
	}
	uc, err := loadedConfig.NewUpgradeUseCase()
	if err != nil {
		return fmt.Errorf("creating upgrade use case: %w", err)
	}
	if err := uc.DiscardBackup(cmd.Context(), name); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Backup of instance %q is removed.\n", name)
	return nil
}

func init() {
	revertCmd.Flags().BoolVar(
		&revertFlags.ignoreMarker, "ignore-marker", false,
		"revert even if no upgrade marker exists",
	)
	addInstanceFlag(revertCmd, &revertFlags.instance)
	addInstanceFlag(discardBackupCmd, &discardFlags.instance)
	instanceCmd.AddCommand(revertCmd, discardBackupCmd)
}
