// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianHabit/services/accountability/middleware"
	"github.com/AleutianAI/AleutianHabit/services/accountability/patterns"
)

// Scanner triggers a full pattern scan outside the schedule.
// Satisfied by sweep.Scheduler.
type Scanner interface {
	ScanNow(ctx context.Context) (patterns.ScanResult, error)
}

// HandleScanNow runs an immediate pattern scan. Admin only.
func HandleScanNow(scanner Scanner) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := checkinTracer.Start(c.Request.Context(), "HandleScanNow")
		defer span.End()

		info := middleware.GetAuthInfo(c)
		if info == nil || !info.Admin {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}

		result, err := scanner.ScanNow(ctx)
		if err != nil {
			respondCheckInError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HandleHealth reports liveness.
func HandleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
