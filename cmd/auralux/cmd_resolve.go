/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/friendsincode/auralux/internal/models"
)

var resolveHighQuality bool

var resolveCmd = &cobra.Command{
	Use:   "resolve <query>",
	Short: "Resolve a search query or URL without joining Discord",
	Long:  "Run the resolver the bot uses for !play and print the resulting track as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runResolve,
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveHighQuality, "hq", false, "resolve at the high quality tier")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	if err := loadConfig(false); err != nil {
		return err
	}

	gw, closeCache := newResolver()
	defer func() { _ = closeCache() }()

	tier := models.TierStandard
	if resolveHighQuality {
		tier = models.TierHigh
	}

	track, err := gw.Resolve(cmd.Context(), strings.Join(args, " "), tier)
	if err != nil {
		return err
	}

	out := struct {
		models.Track
		Duration string `json:"duration"`
		Tier     string `json:"tier"`
	}{track, track.DurationString(), tier.String()}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode track: %w", err)
	}
	return nil
}
