// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package checkin

import (
	"errors"
	"fmt"
)

// Sentinel errors for the checkin package.
var (
	// ErrSessionInProgress indicates the user already has an open
	// check-in session.
	ErrSessionInProgress = errors.New("a check-in session is already in progress")

	// ErrNoSession indicates no open session exists for the user.
	ErrNoSession = errors.New("no check-in session in progress")

	// ErrAlreadyCompletedToday indicates a record for today exists;
	// use a correction instead of a second check-in.
	ErrAlreadyCompletedToday = errors.New("a check-in was already completed today")

	// ErrQuickQuotaExceeded indicates the weekly quick-variant
	// allowance is used up.
	ErrQuickQuotaExceeded = errors.New("quick check-in quota exhausted for this week")

	// ErrUndoUnavailable indicates undo was requested at a step where
	// it is not allowed: the first question, or any reflection step.
	ErrUndoUnavailable = errors.New("nothing to undo at this step")

	// ErrStoreUnavailable indicates the completed record could not be
	// persisted after retries. The session is kept so the completion
	// can be retried.
	ErrStoreUnavailable = errors.New("storage unavailable, check-in not saved")
)

// ValidationError rejects one answer without advancing or mutating the
// session. Reason is safe to show to the user verbatim.
type ValidationError struct {
	Prompt string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid answer to %q: %s", e.Prompt, e.Reason)
}
