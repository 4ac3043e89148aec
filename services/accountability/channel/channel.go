// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package channel abstracts the outbound messaging transport.
//
// The engine only ever needs one primitive: send a text to a user,
// fire-and-forget. Delivery failure handling belongs to the concrete
// transport, not to the core.
package channel

import (
	"context"
	"log/slog"
)

// MessageChannel delivers outbound messages to users.
type MessageChannel interface {
	Send(ctx context.Context, userID, text string) error
}

// LogChannel writes outbound messages to the structured log instead of
// a real transport. The default when no transport is wired; also used
// in tests.
type LogChannel struct{}

func (LogChannel) Send(_ context.Context, userID, text string) error {
	slog.Info("channel: outbound message", "user_id", userID, "text", text)
	return nil
}
