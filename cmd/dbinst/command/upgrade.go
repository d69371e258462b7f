// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package command

import (
	"context"
	"fmt"
	"io"

	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/momeni/dbinst/pkg/core/usecase/upgradeuc"
	"github.com/spf13/cobra"
)

type upgradeOptions struct {
	instance         string
	query            model.QueryOptions
	force            bool
	forceDumpRestore bool
	nonInteractive   bool
}

var upgradeFlags upgradeOptions

var upgradeCmd = &cobra.Command{
	Use:   "upgrade [name]",
	Short: "Upgrade an instance to a newer server version",
	Long: `Upgrade an instance to a newer server version.
The target version is resolved from the packages catalog (or from the
cloud control plane for org/name instances) using at most one of the
--to-* flags. Without them, a local instance is upgraded to the latest
version of its current major version and channel, while a cloud
instance is upgraded to the latest stable version.

Local instances whose data directory can be used by the new server are
upgraded in place. Otherwise, all databases are dumped, a fresh data
directory is initialized by the new server, and the dump is restored
there. The old data directory is kept as a backup which can be put
back by the revert action if the upgrade does not complete.

Exit code 2 means that the upgrade failed after the data directory
was moved aside and the instance must be reverted.`,
	RunE: upgrade,
}

func upgrade(cmd *cobra.Command, args []string) error {
	n, err := parseInstanceName(upgradeFlags.instance, args)
	if err != nil {
		return err
	}
	if n.IsCloud() {
		return upgradeCloud(cmd, n)
	}
	uc, err := loadedConfig.NewUpgradeUseCase()
	if err != nil {
		return fmt.Errorf("creating upgrade use case: %w", err)
	}
	return upgradeLocal(cmd.Context(), uc, n.Name, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

type localUpgrader interface {
	UpgradeLocal(
		ctx context.Context, req upgradeuc.LocalRequest,
	) (*model.UpgradeReport, error)
}

func upgradeLocal(
	ctx context.Context, uc localUpgrader, name string, out, errOut io.Writer,
) error {
	report, err := uc.UpgradeLocal(ctx, upgradeuc.LocalRequest{
		Name:             name,
		Query:            upgradeFlags.query,
		Force:            upgradeFlags.force,
		ForceDumpRestore: upgradeFlags.forceDumpRestore,
	})
	if report != nil {
		printProjects(errOut, report, upgradeFlags.force)
		for _, w := range report.Warnings {
			fmt.Fprintln(errOut, "warning:", w)
		}
	}
	if err != nil {
		return err
	}
	printLocalReport(out, report)
	return nil
}

func printProjects(w io.Writer, r *model.UpgradeReport, force bool) {
	if len(r.Projects) == 0 {
		return
	}
	fmt.Fprintf(w, "Instance %q is used by the following project(s):\n", r.Instance)
	for _, p := range r.Projects {
		fmt.Fprintf(w, "  %s\n", p)
	}
	if force {
		fmt.Fprintln(w, "The project(s) will use the upgraded instance.")
		return
	}
	fmt.Fprintln(w, "To continue with the upgrade, run:")
	fmt.Fprintf(
		w, "  dbinst instance upgrade -I %q %s --force\n",
		r.Instance, r.Query.Flag(),
	)
}

func printLocalReport(w io.Writer, r *model.UpgradeReport) {
	switch r.Action {
	case model.ActionNone:
		fmt.Fprintf(
			w, "Latest version found %s, current instance version is %s. "+
				"Already up to date.\n",
			r.RequestedVersion, r.PriorVersion,
		)
		if r.AvailableUpgrade != nil {
			fmt.Fprintf(
				w, "Version %s is available too, run with --to-latest "+
					"to upgrade to it.\n",
				*r.AvailableUpgrade,
			)
		}
	case model.ActionUpgraded:
		printVersionHint(w, r.RequestedVersion, r.Query)
		kind := "a minor"
		if r.Path == model.IncompatiblePath {
			kind = "a major"
		}
		fmt.Fprintf(
			w, "Instance %q has been successfully upgraded from %s to %s "+
				"(%s version, %s).\n",
			r.Instance, r.PriorVersion, r.RequestedVersion, kind, r.Path,
		)
	}
}

// printVersionHint tells which query selected the v version.
func printVersionHint(w io.Writer, v model.Version, q model.VersionQuery) {
	switch {
	case q.Channel == model.ChannelNightly:
		fmt.Fprintf(w, "Version %s is the latest nightly build.\n", v)
	case q.Channel == model.ChannelTesting:
		fmt.Fprintf(w, "Version %s is the latest testing build.\n", v)
	case q.Constraint != "":
		fmt.Fprintf(
			w, "Version %s is the latest stable version matching %q.\n",
			v, q.Constraint,
		)
	default:
		fmt.Fprintf(w, "Version %s is the latest stable version.\n", v)
	}
}

func upgradeCloud(cmd *cobra.Command, n instanceName) error {
	if upgradeFlags.forceDumpRestore {
		return fmt.Errorf(
			"--force-dump-restore is not supported for cloud instances",
		)
	}
	q, err := upgradeuc.CloudQuery(upgradeFlags.query)
	if err != nil {
		return err
	}
	cuc, err := loadedConfig.NewCloudUseCase()
	if err != nil {
		return fmt.Errorf("creating cloud upgrade use case: %w", err)
	}
	out := cmd.OutOrStdout()
	confirmFn := func(target model.Version) (bool, error) {
		printVersionHint(out, target, q)
		if upgradeFlags.nonInteractive {
			return true, nil
		}
		return confirm(cmd.InOrStdin(), out, fmt.Sprintf(
			"This will upgrade %s to version %s.\nConfirm?", n, target,
		))
	}
	res, err := cuc.UpgradeCloud(
		cmd.Context(), n.Org, n.Name, q, upgradeFlags.force, confirmFn,
	)
	if err != nil {
		return err
	}
	printCloudResult(out, n, res)
	return nil
}

func printCloudResult(w io.Writer, n instanceName, res *model.UpgradeResult) {
	switch res.Action {
	case model.ActionUpgraded:
		fmt.Fprintf(
			w, "Cloud instance %s has been successfully upgraded to "+
				"version %s.\n",
			n, res.RequestedVersion,
		)
	case model.ActionCancelled:
		fmt.Fprintln(w, "Canceled.")
	default:
		fmt.Fprintf(
			w, "Already up to date.\nRequested upgrade version is %s, "+
				"current instance version is %s.\n",
			res.RequestedVersion, res.PriorVersion,
		)
	}
}

func init() {
	f := upgradeCmd.Flags()
	f.BoolVar(
		&upgradeFlags.query.Latest, "to-latest", false,
		"upgrade to the latest stable version",
	)
	f.BoolVar(
		&upgradeFlags.query.Nightly, "to-nightly", false,
		"upgrade to the latest nightly build",
	)
	f.BoolVar(
		&upgradeFlags.query.Testing, "to-testing", false,
		"upgrade to the latest testing build",
	)
	f.StringVar(
		&upgradeFlags.query.Channel, "to-channel", "",
		"upgrade to the latest version of a channel "+
			"(stable, testing, or nightly)",
	)
	f.StringVar(
		&upgradeFlags.query.Version, "to-version", "",
		"upgrade to a specific (possibly partial) version",
	)
	upgradeCmd.MarkFlagsMutuallyExclusive(
		"to-latest", "to-nightly", "to-testing", "to-channel", "to-version",
	)
	f.BoolVar(
		&upgradeFlags.force, "force", false,
		"reinstall even if the version is not newer, and upgrade "+
			"instances which are used by projects",
	)
	f.BoolVar(
		&upgradeFlags.forceDumpRestore, "force-dump-restore", false,
		"migrate the data by a dump and restore even for compatible "+
			"versions",
	)
	f.BoolVar(
		&upgradeFlags.nonInteractive, "non-interactive", false,
		"do not ask for a confirmation (cloud instances)",
	)
	addInstanceFlag(upgradeCmd, &upgradeFlags.instance)
	instanceCmd.AddCommand(upgradeCmd)
}
