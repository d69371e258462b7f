// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package command

import (
	"fmt"

	"github.com/momeni/dbinst/pkg/adapter/config"
	"github.com/momeni/dbinst/pkg/adapter/config/cfg1"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration file actions",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration settings",
	Long: `Print the effective configuration settings, after filling the
missing items with their default values. Comments of the configuration
file are preserved.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		b, err := yaml.Marshal(loadedConfig)
		if err != nil {
			return fmt.Errorf("marshalling config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	},
}

var configInitFlags struct {
	force bool
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Long: `Write a configuration file with the default settings of version
` + cfg1.Version.String() + `, at the path which is given by the -c flag (or
its default). An existing file is only replaced with --force.`,
	Args: cobra.NoArgs,
	// the file which is going to be written is not loaded
	PersistentPreRunE: func(*cobra.Command, []string) error {
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := cfg1.Default()
		if err != nil {
			return fmt.Errorf("creating default config: %w", err)
		}
		path := cfgPath
		if path == "" {
			path = config.DefaultPath()
		}
		if err := config.Save(path, c, configInitFlags.force); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration is written to %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(
		&configInitFlags.force, "force", false,
		"replace an existing configuration file",
	)
	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}
