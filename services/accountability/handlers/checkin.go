// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the Gin handlers for the accountability
// service's HTTP surface.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianHabit/services/accountability/checkin"
	"github.com/AleutianAI/AleutianHabit/services/accountability/datatypes"
	"github.com/AleutianAI/AleutianHabit/services/accountability/middleware"
	"github.com/AleutianAI/AleutianHabit/services/accountability/storage"
)

var checkinTracer = otel.Tracer("aleutian.habit.handlers")

var validate = validator.New()

type StartCheckInRequest struct {
	Variant string `json:"variant" validate:"omitempty,oneof=full quick"`
}

type AnswerRequest struct {
	Text string `json:"text"`
}

type CorrectRequest struct {
	Habit  string `json:"habit" validate:"required"`
	Answer string `json:"answer" validate:"required"`
}

// callerID resolves the acting user from the auth middleware.
func callerID(c *gin.Context) (string, bool) {
	info := middleware.GetAuthInfo(c)
	if info == nil || info.UserID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return info.UserID, true
}

// HandleStartCheckIn opens a check-in session and returns the first
// question. The variant defaults to full.
func HandleStartCheckIn(manager *checkin.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := checkinTracer.Start(c.Request.Context(), "HandleStartCheckIn")
		defer span.End()

		userID, ok := callerID(c)
		if !ok {
			return
		}

		var req StartCheckInRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := validate.Struct(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		variant := checkin.SessionVariant(req.Variant)
		if variant == "" {
			variant = checkin.VariantFull
		}

		result, err := manager.Start(ctx, userID, variant)
		if err != nil {
			respondCheckInError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HandleAnswer records one answer in the caller's open session.
func HandleAnswer(manager *checkin.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := checkinTracer.Start(c.Request.Context(), "HandleAnswer")
		defer span.End()

		userID, ok := callerID(c)
		if !ok {
			return
		}

		var req AnswerRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		result, err := manager.Answer(ctx, userID, req.Text)
		if err != nil {
			respondCheckInError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HandleUndo steps the caller's session back one item question.
func HandleUndo(manager *checkin.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := checkinTracer.Start(c.Request.Context(), "HandleUndo")
		defer span.End()

		userID, ok := callerID(c)
		if !ok {
			return
		}
		result, err := manager.Undo(userID)
		if err != nil {
			respondCheckInError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HandleCancel abandons the caller's open session.
func HandleCancel(manager *checkin.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := checkinTracer.Start(c.Request.Context(), "HandleCancel")
		defer span.End()

		userID, ok := callerID(c)
		if !ok {
			return
		}
		if err := manager.Cancel(userID); err != nil {
			respondCheckInError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"cancelled": true})
	}
}

// HandleCorrect rewrites one item of the record for the date in the
// path.
func HandleCorrect(manager *checkin.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := checkinTracer.Start(c.Request.Context(), "HandleCorrect")
		defer span.End()

		userID, ok := callerID(c)
		if !ok {
			return
		}

		date, err := datatypes.ParseDate(c.Param("date"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, want YYYY-MM-DD"})
			return
		}

		var req CorrectRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := validate.Struct(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		record, err := manager.Correct(ctx, userID, date, datatypes.HabitKey(req.Habit), req.Answer)
		if err != nil {
			respondCheckInError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

// respondCheckInError maps domain errors onto the HTTP surface:
// rejected input is 400, conversation-state conflicts are 409,
// missing things are 404, exhausted quotas are 429, and a store that
// would not take the write after retries is 503.
func respondCheckInError(c *gin.Context, span trace.Span, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("handlers.checkin: request failed", "status", status, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	var verr *checkin.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, checkin.ErrSessionInProgress),
		errors.Is(err, checkin.ErrAlreadyCompletedToday),
		errors.Is(err, checkin.ErrUndoUnavailable):
		return http.StatusConflict
	case errors.Is(err, checkin.ErrNoSession),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkin.ErrQuickQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, checkin.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
