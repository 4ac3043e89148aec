package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	model := os.Getenv("OPENAI_MODEL") // e.g., "gpt-4o"
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API Key from Podman Secrets")
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	slog.Info("Initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

const systemRole = "You are a blunt, supportive accountability coach. " +
	"Ground every sentence in the numbers you are given. Never invent data. " +
	"No platitudes, no emoji."

// Generate implements the TextGenerator interface.
func (o *OpenAIClient) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	slog.Debug("Generating text via OpenAI", "model", o.model, "style", req.Style)

	contextJSON, err := json.Marshal(req.Context)
	if err != nil {
		return "", fmt.Errorf("marshal generation context: %w", err)
	}
	prompt := fmt.Sprintf("%s\n\nStyle: %s\nFacts (JSON): %s\nKeep the reply under %d characters.",
		req.Prompt, req.Style, contextJSON, req.MaxChars)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemRole},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices or empty content")
		return "", fmt.Errorf("OpenAI returned no choices")
	}

	text := resp.Choices[0].Message.Content
	if req.MaxChars > 0 && len(text) > req.MaxChars {
		text = text[:req.MaxChars]
	}
	slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return text, nil
}
