// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianHabit/services/accountability/checkin"
)

var checkinQuick bool

var checkinCmd = &cobra.Command{
	Use:   "checkin",
	Short: "Run today's check-in interactively",
	Long: `Walks through today's check-in question by question.

During the conversation:
  /undo     go back one question
  /cancel   abandon the check-in
Answers like "no - travel day" attach a note to the item.`,
	RunE: runCheckin,
}

func init() {
	checkinCmd.Flags().BoolVar(&checkinQuick, "quick", false,
		"Quick variant: habit items only, no reflections (weekly quota applies)")
}

func runCheckin(cmd *cobra.Command, _ []string) error {
	client := newAPIClient()
	ctx := cmd.Context()

	variant := "full"
	if checkinQuick {
		variant = "quick"
	}

	var current checkin.StartResult
	err := client.call(ctx, http.MethodPost, "/v1/checkin/start",
		map[string]string{"variant": variant}, &current)
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("[%d/%d] %s\n> ", current.Step, current.Total, current.Prompt)
		if !scanner.Scan() {
			fmt.Println("\nInput closed; the session stays open for 15 minutes.")
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())

		switch text {
		case "/cancel":
			if err := client.call(ctx, http.MethodPost, "/v1/checkin/cancel", nil, nil); err != nil {
				return err
			}
			fmt.Println("Check-in cancelled. Nothing was saved.")
			return nil
		case "/undo":
			var back checkin.StartResult
			if err := client.call(ctx, http.MethodPost, "/v1/checkin/undo", nil, &back); err != nil {
				if isClientError(err) {
					fmt.Println(serverMessage(err))
					continue
				}
				return err
			}
			current = back
			continue
		}

		var result checkin.AnswerResult
		err := client.call(ctx, http.MethodPost, "/v1/checkin/answer",
			map[string]string{"text": text}, &result)
		if err != nil {
			if isClientError(err) {
				// Rejected answer: same question again.
				fmt.Println(serverMessage(err))
				continue
			}
			return err
		}

		if result.Done {
			fmt.Println()
			fmt.Println(result.Summary.Text)
			return nil
		}
		current = checkin.StartResult{
			Prompt: result.Prompt,
			Step:   result.Step,
			Total:  result.Total,
		}
	}
}

func isClientError(err error) bool {
	var apiErr *apiError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest
}

func serverMessage(err error) string {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
