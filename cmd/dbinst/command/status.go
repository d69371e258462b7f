// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package command

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"
	"github.com/momeni/dbinst/pkg/core/cerr"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/spf13/cobra"
)

var statusFlags struct {
	instance string
}

var statusCmd = &cobra.Command{
	Use:   "status [name]",
	Short: "Show the upgrade related state of an instance",
	RunE:  status,
}

func status(cmd *cobra.Command, args []string) error {
	name, err := localName(statusFlags.instance, args)
	if err != nil {
		return err
	}
	uc, err := loadedConfig.NewUpgradeUseCase()
	if err != nil {
		return fmt.Errorf("creating upgrade use case: %w", err)
	}
	st, err := uc.Status(cmd.Context(), name)
	if err != nil {
		return err
	}
	return printStatus(cmd.OutOrStdout(), st, dirSize)
}

func printStatus(
	w io.Writer, st *model.InstanceStatus, size func(string) (int64, error),
) error {
	table := newTable()
	row := func(k, format string, args ...any) {
		if k != "" {
			k += ":"
		}
		table.AddRow(k, fmt.Sprintf(format, args...))
	}
	inst := st.Instance
	row("Instance", "%s (port %d)", inst.Name, inst.Port)
	if ii := inst.Installation; ii != nil {
		row(
			"Version", "%s (%s, installed %s)",
			ii.Version, ii.PackageName, humanize.Time(ii.InstalledAt),
		)
	} else {
		row("Version", "unknown")
	}
	if st.DataDirExists {
		row("Data directory", "%s", st.Paths.DataDir)
	} else {
		row("Data directory", "%s (missing)", st.Paths.DataDir)
	}
	if m := st.Marker; m != nil {
		row(
			"Upgrade", "from %s to %s, started %s by process %d",
			m.Source, m.Target, humanize.Time(m.Started), m.PID,
		)
		row("", "revert with: %s", cerr.RevertCommand(inst.Name))
	} else {
		row("Upgrade", "none in progress")
	}
	if b := st.Backup; b != nil {
		n, err := size(st.Paths.BackupDir)
		if err != nil {
			return fmt.Errorf("measuring backup size: %w", err)
		}
		row(
			"Backup", "%s, taken %s (%s)", st.Paths.BackupDir,
			humanize.Time(b.Timestamp), humanize.Bytes(uint64(n)),
		)
	} else {
		row("Backup", "none")
	}
	for i, p := range st.Projects {
		k := ""
		if i == 0 {
			k = "Projects"
		}
		row(k, "%s", p)
	}
	_, err := fmt.Fprintln(w, table)
	return err
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List local instances and their upgrade state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		uc, err := loadedConfig.NewUpgradeUseCase()
		if err != nil {
			return fmt.Errorf("creating upgrade use case: %w", err)
		}
		sts, err := uc.List(cmd.Context())
		if err != nil {
			return err
		}
		return printList(cmd.OutOrStdout(), sts)
	},
}

func printList(w io.Writer, sts []model.InstanceStatus) error {
	table := newTable()
	table.AddRow("NAME", "VERSION", "PORT", "UPGRADE", "BACKUP")
	for _, st := range sts {
		v, err := st.Instance.Version()
		ver := v.String()
		if err != nil {
			ver = "unknown"
		}
		upgrade := "-"
		if m := st.Marker; m != nil {
			upgrade = fmt.Sprintf("to %s, needs revert", m.Target)
		}
		backup := "-"
		if b := st.Backup; b != nil {
			backup = humanize.Time(b.Timestamp)
		}
		table.AddRow(st.Instance.Name, ver, st.Instance.Port, upgrade, backup)
	}
	_, err := fmt.Fprintln(w, table)
	return err
}

func newTable() *uitable.Table {
	table := uitable.New()
	table.Separator = "  "
	return table
}

// dirSize sums the sizes of the regular files under root.
func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

func init() {
	addInstanceFlag(statusCmd, &statusFlags.instance)
	instanceCmd.AddCommand(statusCmd, listCmd)
}
