package llm

import (
	"context"
	"errors"
)

// ErrUnavailable indicates no generation backend is configured.
var ErrUnavailable = errors.New("text generation unavailable")

// GenerationRequest carries the structured context for one generation
// call. Context holds the facts the text must be grounded in (scores,
// dates, streak numbers); Style hints at tone ("supportive",
// "direct", "urgent").
type GenerationRequest struct {
	Prompt   string                 `json:"prompt"`
	Context  map[string]interface{} `json:"context"`
	MaxChars int                    `json:"max_chars"`
	Style    string                 `json:"style"`
}

// TextGenerator is the standard interface for any generation backend.
//
// Implementations must fail fast rather than hang: callers bound every
// call with a context timeout and always hold a deterministic fallback
// template, so a slow or failing backend never blocks a check-in from
// completing.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// Unavailable is a TextGenerator that always fails, forcing callers
// onto their fallback templates. Used when no API key is configured
// and throughout the test suite.
type Unavailable struct{}

func (Unavailable) Generate(context.Context, GenerationRequest) (string, error) {
	return "", ErrUnavailable
}
