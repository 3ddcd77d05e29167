// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the QRead CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qread",
		Short: "QRead - library account and sign-in service",
		Long: `QRead serves account sign-up, two-step sign-in with emailed
passcodes, password resets, librarian invitations and account
administration for a library system.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())

	return cmd
}
