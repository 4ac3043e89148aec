// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianHabit/services/accountability/checkin"
	"github.com/AleutianAI/AleutianHabit/services/accountability/handlers"
	"github.com/AleutianAI/AleutianHabit/services/accountability/middleware"
	"github.com/AleutianAI/AleutianHabit/services/accountability/ratelimit"
	"github.com/AleutianAI/AleutianHabit/services/accountability/storage"
)

// SetupRoutes wires the HTTP surface. Auth runs on everything under
// /v1; the rate limiter additionally guards the routes that do real
// work. Health and metrics stay outside both.
func SetupRoutes(router *gin.Engine, manager *checkin.Manager, store storage.Store,
	limiter *ratelimit.Limiter, scanner handlers.Scanner, auth middleware.AuthProvider) {

	router.Use(middleware.RequestID())

	router.GET("/health", handlers.HandleHealth())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(auth))
	{
		limited := v1.Group("")
		limited.Use(middleware.RateLimitMiddleware(limiter, store))
		{
			limited.POST("/checkin/start", handlers.HandleStartCheckIn(manager))
			limited.POST("/checkin/answer", handlers.HandleAnswer(manager))
			limited.POST("/checkin/undo", handlers.HandleUndo(manager))
			limited.POST("/checkin/cancel", handlers.HandleCancel(manager))
			limited.POST("/records/:date/correct", handlers.HandleCorrect(manager))
		}

		// Read paths are cheap; auth only.
		v1.GET("/streak", handlers.HandleStreak(store))
		v1.GET("/history", handlers.HandleHistory(store))
		v1.GET("/interventions", handlers.HandleInterventions(store))

		admin := v1.Group("/admin")
		{
			admin.POST("/scan", handlers.HandleScanNow(scanner))
		}
	}
}
