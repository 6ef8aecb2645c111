package fusion

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// ContentGenerator is the model capability the orchestrator needs. It matches
// the signature of (*genai.Models).GenerateContent so an SDK client's Models
// field satisfies it directly.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Compile-time interface checks.
var (
	_ ContentGenerator = (*genai.Models)(nil)
	_ ContentGenerator = (*RESTClient)(nil)
)

// NewGeminiClient creates a genai SDK client for the Gemini Developer API.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return client, nil
}
