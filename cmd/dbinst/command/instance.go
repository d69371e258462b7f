// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/momeni/dbinst/pkg/adapter/meta/fsmeta"
	"github.com/spf13/cobra"
)

var instanceCmd = &cobra.Command{
	Use:   "instance",
	Short: "Instance upgrade actions",
	Long: `Instance upgrade actions can be chosen by sub-commands.
The upgrade action moves an instance to a newer server version, the
revert action undoes an incomplete upgrade, the status action shows
the upgrade related state of an instance, and the discard-backup
action removes the data directory which was preserved by an upgrade.`,
}

// instanceName is a parsed instance argument. Org is empty for local
// instances.
type instanceName struct {
	Org  string
	Name string
}

func (n instanceName) IsCloud() bool {
	return n.Org != ""
}

func (n instanceName) String() string {
	if n.IsCloud() {
		return n.Org + "/" + n.Name
	}
	return n.Name
}

var errNoInstance = errors.New(
	"instance name is required, pass it with -I or as an argument",
)

// parseInstanceName parses the instance name which may be given either
// as the only positional argument or with the -I flag (but not both).
// Names in the org/name form denote cloud instances.
func parseInstanceName(flag string, args []string) (instanceName, error) {
	s := flag
	switch {
	case len(args) > 0 && flag != "":
		return instanceName{}, errors.New(
			"instance name is given both with -I and as an argument",
		)
	case len(args) > 0:
		s = args[0]
	case s == "":
		return instanceName{}, errNoInstance
	}
	org, name, found := strings.Cut(s, "/")
	if !found {
		if err := fsmeta.ValidateName(s); err != nil {
			return instanceName{}, err
		}
		return instanceName{Name: s}, nil
	}
	if org == "" || name == "" || strings.Contains(name, "/") {
		return instanceName{}, fmt.Errorf(
			"invalid cloud instance name %q, expecting org/name", s,
		)
	}
	return instanceName{Org: org, Name: name}, nil
}

// localName is like parseInstanceName, but it rejects cloud instances.
func localName(flag string, args []string) (string, error) {
	n, err := parseInstanceName(flag, args)
	if err != nil {
		return "", err
	}
	if n.IsCloud() {
		return "", fmt.Errorf(
			"%s: only local instances are supported by this action", n,
		)
	}
	return n.Name, nil
}

func addInstanceFlag(cmd *cobra.Command, name *string) {
	cmd.Flags().StringVarP(name, "instance", "I", "", "instance name")
	cmd.Args = cobra.MaximumNArgs(1)
}

func init() {
	rootCmd.AddCommand(instanceCmd)
}
