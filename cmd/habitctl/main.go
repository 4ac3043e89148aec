// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// habitctl is the command-line client for the accountability service.
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	authToken string
)

var rootCmd = &cobra.Command{
	Use:   "habitctl",
	Short: "Daily check-ins, streaks and pattern scans from the terminal",
	Long: `habitctl talks to a running accountability service.

Examples:
  habitctl checkin             # Run today's full check-in
  habitctl checkin --quick     # Items only, no reflections
  habitctl streak              # Current streak and shields
  habitctl history --limit 7   # Last week's records
  habitctl scan                # Trigger a pattern scan now (admin)`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	defaultServer := os.Getenv("HABIT_SERVER_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:12300"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer,
		"Base URL of the accountability service")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("HABIT_AUTH_TOKEN"),
		"Bearer token; empty works against a local service")

	rootCmd.AddCommand(checkinCmd)
	rootCmd.AddCommand(streakCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(correctCmd)
	rootCmd.AddCommand(scanCmd)
}
