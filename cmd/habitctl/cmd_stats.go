// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianHabit/services/accountability/datatypes"
)

var historyLimit int

var streakCmd = &cobra.Command{
	Use:   "streak",
	Short: "Show the current streak and shield balance",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client := newAPIClient()
		var resp struct {
			CurrentStreak     int    `json:"current_streak"`
			LongestStreak     int    `json:"longest_streak"`
			TotalRecords      int    `json:"total_records"`
			LastRecordDate    string `json:"last_record_date"`
			StreakBeforeReset int    `json:"streak_before_reset"`
			Shields           int    `json:"shields"`
		}
		if err := client.call(cmd.Context(), http.MethodGet, "/v1/streak", nil, &resp); err != nil {
			return err
		}

		fmt.Printf("Streak:   %d days (longest %d)\n", resp.CurrentStreak, resp.LongestStreak)
		fmt.Printf("Shields:  %d\n", resp.Shields)
		fmt.Printf("Records:  %d total", resp.TotalRecords)
		if resp.LastRecordDate != "" {
			fmt.Printf(", last on %s", resp.LastRecordDate)
		}
		fmt.Println()
		if resp.StreakBeforeReset > 0 && resp.CurrentStreak <= resp.StreakBeforeReset {
			fmt.Printf("Rebuilding after a reset; the old streak was %d.\n", resp.StreakBeforeReset)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent daily records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client := newAPIClient()
		var resp struct {
			Records []datatypes.HabitRecord `json:"records"`
		}
		path := fmt.Sprintf("/v1/history?limit=%d", historyLimit)
		if err := client.call(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
			return err
		}
		if len(resp.Records) == 0 {
			fmt.Println("No records yet. Run `habitctl checkin` to start.")
			return nil
		}

		for _, record := range resp.Records {
			corrected := ""
			if record.CorrectedAt != nil {
				corrected = "  (corrected)"
			}
			fmt.Printf("%s  %3.0f/100 %-9s%s\n", record.Date, record.ComplianceScore,
				record.ComplianceLevel, corrected)

			keys := make([]string, 0, len(record.Items))
			for key := range record.Items {
				keys = append(keys, string(key))
			}
			sort.Strings(keys)
			for _, key := range keys {
				item := record.Items[datatypes.HabitKey(key)]
				mark := "✗"
				if item.Completed {
					mark = "✓"
				}
				line := fmt.Sprintf("    %s %s", mark, key)
				if item.Metric != nil {
					line += fmt.Sprintf(" (%.1f)", *item.Metric)
				}
				if item.Note != "" {
					line += "  - " + item.Note
				}
				fmt.Println(line)
			}
		}
		return nil
	},
}

var correctCmd = &cobra.Command{
	Use:   "correct <date> <habit> <answer>",
	Short: "Rewrite one item of a past record",
	Long: `Rewrites one habit item of an already-completed record and
recomputes its score. The streak is unaffected; the day already
counted.

Example:
  habitctl correct 2025-07-02 training yes`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient()
		var record datatypes.HabitRecord
		path := fmt.Sprintf("/v1/records/%s/correct", args[0])
		err := client.call(cmd.Context(), http.MethodPost, path,
			map[string]string{"habit": args[1], "answer": args[2]}, &record)
		if err != nil {
			return err
		}
		fmt.Printf("Corrected %s: score is now %.0f/100 (%s).\n",
			record.Date, record.ComplianceScore, record.ComplianceLevel)
		return nil
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Trigger an immediate pattern scan (admin)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client := newAPIClient()
		var result struct {
			UsersScanned      int `json:"users_scanned"`
			PatternsFound     int `json:"patterns_found"`
			InterventionsSent int `json:"interventions_sent"`
		}
		if err := client.call(cmd.Context(), http.MethodPost, "/v1/admin/scan", nil, &result); err != nil {
			return err
		}
		fmt.Printf("Scanned %d users: %d patterns, %d interventions sent.\n",
			result.UsersScanned, result.PatternsFound, result.InterventionsSent)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 14, "Number of records to show")
}
