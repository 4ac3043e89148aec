// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianHabit/services/accountability/datatypes"
	"github.com/AleutianAI/AleutianHabit/services/accountability/observability"
	"github.com/AleutianAI/AleutianHabit/services/accountability/ratelimit"
	"github.com/AleutianAI/AleutianHabit/services/accountability/storage"
)

// =============================================================================
// Rate Limit Middleware
// =============================================================================

// RateLimitMiddleware creates a Gin middleware enforcing the per-tier
// limiter.
//
// # Description
//
// Resolves the caller from AuthInfo (AuthMiddleware must run first),
// looks up their tier, and consults the limiter. Admin callers bypass
// the limiter entirely; the bypass lives here, not in the limiter, so
// the limiter stays a pure policy object. Rejections answer 429 with
// a retry_after_seconds hint.
func RateLimitMiddleware(limiter *ratelimit.Limiter, store storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := GetAuthInfo(c)
		if info == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if info.Admin {
			c.Next()
			return
		}

		tier := datatypes.TierStandard
		if user, err := store.GetUser(c.Request.Context(), info.UserID); err == nil {
			tier = user.Tier
		}

		if err := limiter.Allow(info.UserID, tier); err != nil {
			rejectRateLimited(c, tier, err)
			return
		}
		c.Next()
	}
}

func rejectRateLimited(c *gin.Context, tier datatypes.Tier, err error) {
	var (
		reason     string
		retryAfter float64
	)
	switch e := err.(type) {
	case *ratelimit.CooldownActiveError:
		reason = "cooldown"
		retryAfter = e.RetryAfter.Seconds()
	case *ratelimit.HourlyLimitError:
		reason = "hourly_cap"
		retryAfter = e.RetryAfter.Seconds()
	default:
		reason = "rejected"
	}

	if observability.DefaultMetrics != nil {
		observability.DefaultMetrics.RateLimitRejectionsTotal.
			WithLabelValues(string(tier), reason).Inc()
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":               err.Error(),
		"reason":              reason,
		"retry_after_seconds": int(math.Ceil(retryAfter)),
	})
}
