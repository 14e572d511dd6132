/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/auralux/internal/version"
)

var versionCheck bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "auralux %s\n", version.Version)
		if !versionCheck {
			return nil
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		info, err := version.NewChecker(zerolog.Nop()).Check(ctx)
		if err != nil {
			return fmt.Errorf("check for updates: %w", err)
		}
		if info.UpdateAvailable {
			fmt.Fprintf(cmd.OutOrStdout(), "update available: %s (%s)\n", info.LatestVersion, info.ReleaseURL)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "up to date")
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "check GitHub for a newer release")
	rootCmd.AddCommand(versionCmd)
}
