package reasoning

import "context"

// GenerationParams tunes a single backend call.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Client defines the standard interface for any text-generation backend.
// Implementations return the raw reply text; extraction and validation of
// structured payloads is the Gateway's job, never the client's.
type Client interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}
