// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianHabit/services/accountability/storage"
)

const (
	defaultHistoryLimit = 14
	maxHistoryLimit     = 90
)

// StreakResponse combines streak state with the shield balance.
type StreakResponse struct {
	CurrentStreak     int    `json:"current_streak"`
	LongestStreak     int    `json:"longest_streak"`
	TotalRecords      int    `json:"total_records"`
	LastRecordDate    string `json:"last_record_date,omitempty"`
	StreakBeforeReset int    `json:"streak_before_reset,omitempty"`
	Shields           int    `json:"shields"`
}

// HandleStreak returns the caller's streak state and shield balance.
func HandleStreak(store storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := checkinTracer.Start(c.Request.Context(), "HandleStreak")
		defer span.End()

		userID, ok := callerID(c)
		if !ok {
			return
		}

		streak, err := store.GetStreak(ctx, userID)
		if err != nil {
			respondCheckInError(c, span, err)
			return
		}
		resp := StreakResponse{
			CurrentStreak:     streak.CurrentStreak,
			LongestStreak:     streak.LongestStreak,
			TotalRecords:      streak.TotalRecords,
			StreakBeforeReset: streak.StreakBeforeReset,
		}
		if streak.LastRecordDate != nil {
			resp.LastRecordDate = string(*streak.LastRecordDate)
		}
		if user, err := store.GetUser(ctx, userID); err == nil {
			resp.Shields = user.Shields
		}
		c.JSON(http.StatusOK, resp)
	}
}

// HandleHistory returns the caller's recent records, newest first.
// ?limit= caps the count; the default is two weeks.
func HandleHistory(store storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := checkinTracer.Start(c.Request.Context(), "HandleHistory")
		defer span.End()

		userID, ok := callerID(c)
		if !ok {
			return
		}

		limit := defaultHistoryLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = min(n, maxHistoryLimit)
		}

		records, err := store.ListRecentRecords(ctx, userID, limit)
		if err != nil {
			respondCheckInError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
	}
}

// HandleInterventions returns the caller's recent intervention log.
func HandleInterventions(store storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := checkinTracer.Start(c.Request.Context(), "HandleInterventions")
		defer span.End()

		userID, ok := callerID(c)
		if !ok {
			return
		}

		since := time.Now().AddDate(0, 0, -30)
		interventions, err := store.ListRecentInterventions(ctx, userID, since)
		if err != nil {
			respondCheckInError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"interventions": interventions, "count": len(interventions)})
	}
}
