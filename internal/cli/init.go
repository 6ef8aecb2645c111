package cli

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/fpang/aop-fashion-mockup/internal/auth"
	"github.com/fpang/aop-fashion-mockup/internal/fusion"
)

// Backend names accepted by InitGenerator.
const (
	BackendSDK  = "sdk"
	BackendREST = "rest"
)

// InitGenerator retrieves and validates the API key and returns a model
// client for the chosen backend. Exits fatally on failure.
func InitGenerator(ctx context.Context, backend string) fusion.ContentGenerator {
	apiKey, err := auth.GetAPIKey()
	if err != nil {
		HandleValidationError(err)
	}
	return NewGenerator(ctx, apiKey, backend)
}

// NewGenerator builds and validates a model client from an explicit key.
// Exits fatally on failure.
func NewGenerator(ctx context.Context, apiKey, backend string) fusion.ContentGenerator {
	var gen fusion.ContentGenerator
	switch backend {
	case BackendREST:
		gen = fusion.NewRESTClient(apiKey, &http.Client{})
	case BackendSDK, "":
		client, err := fusion.NewGeminiClient(ctx, apiKey)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create Gemini client")
		}
		gen = client.Models
	default:
		log.Fatal().Str("backend", backend).Msg("unknown model backend, want sdk or rest")
	}

	log.Info().Str("backend", backend).Msg("Gemini client initialized")

	if err := auth.ValidateAPIKey(ctx, gen); err != nil {
		HandleValidationError(err)
	}

	log.Info().Msg("API key validation complete - ready for operations")
	return gen
}
