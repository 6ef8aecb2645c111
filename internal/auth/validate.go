package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/aop-fashion-mockup/internal/metrics"
)

// validationModel is a cheap text model used only to check the key.
const validationModel = "gemini-2.5-flash-lite"

// Generator is the subset of the genai Models API needed for validation.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// ValidationError is a classified API key or model failure.
type ValidationError struct {
	Type    ValidationErrorType
	Message string
	Err     error
}

// ValidationErrorType categorizes failures.
type ValidationErrorType int

const (
	// ErrTypeNoKey indicates no API key was found.
	ErrTypeNoKey ValidationErrorType = iota
	// ErrTypeInvalidKey indicates the API key is invalid or revoked.
	ErrTypeInvalidKey
	// ErrTypeNetworkError indicates a connectivity or server-side issue.
	ErrTypeNetworkError
	// ErrTypeQuotaExceeded indicates quota or rate limiting.
	ErrTypeQuotaExceeded
	// ErrTypeUnknown is everything else.
	ErrTypeUnknown
)

// String returns a low-cardinality label for metrics dimensions.
func (t ValidationErrorType) String() string {
	switch t {
	case ErrTypeNoKey:
		return "no_key"
	case ErrTypeInvalidKey:
		return "invalid"
	case ErrTypeNetworkError:
		return "network_error"
	case ErrTypeQuotaExceeded:
		return "quota"
	default:
		return "unknown"
	}
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidateAPIKey makes a minimal request to verify the key. It returns nil or
// a *ValidationError.
func ValidateAPIKey(ctx context.Context, gen Generator) error {
	log.Debug().Msg("Validating API key with Gemini API")

	start := time.Now()
	resp, err := gen.GenerateContent(ctx, validationModel, genai.Text("hi"), nil)
	elapsed := time.Since(start)

	result := "success"
	var valErr *ValidationError
	switch {
	case err != nil:
		valErr = Classify(err)
		result = valErr.Type.String()
	case resp == nil || len(resp.Candidates) == 0:
		valErr = &ValidationError{Type: ErrTypeUnknown, Message: "API returned empty response"}
		result = "empty_response"
	}

	metrics.New(metrics.Namespace).
		Dimension("Result", result).
		Duration(metrics.KeyValidation, elapsed).
		Count(metrics.KeyValidationRes).
		Flush()

	if valErr != nil {
		log.Error().Err(valErr).Str("result", result).Dur("duration", elapsed).Msg("API key validation failed")
		return valErr
	}

	log.Info().Dur("duration", elapsed).Msg("API key validated successfully")
	return nil
}

// Classify maps any model error to a ValidationError. It never returns nil
// for a non-nil err.
func Classify(err error) *ValidationError {
	if err == nil {
		return nil
	}

	var already *ValidationError
	if errors.As(err, &already) {
		return already
	}

	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ValidationError{Type: ErrTypeNetworkError, Message: "request timed out", Err: err}
	}

	errLower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errLower, "api key not valid") ||
		strings.Contains(errLower, "invalid api key") ||
		strings.Contains(errLower, "api_key_invalid") ||
		strings.Contains(errLower, "permission denied"):
		return &ValidationError{Type: ErrTypeInvalidKey, Message: "API key is invalid or has been revoked", Err: err}

	case strings.Contains(errLower, "quota") ||
		strings.Contains(errLower, "resource exhausted") ||
		strings.Contains(errLower, "rate limit"):
		return &ValidationError{Type: ErrTypeQuotaExceeded, Message: "API quota exceeded or rate limited", Err: err}

	case strings.Contains(errLower, "connection") ||
		strings.Contains(errLower, "network") ||
		strings.Contains(errLower, "timeout") ||
		strings.Contains(errLower, "dial") ||
		strings.Contains(errLower, "no such host") ||
		strings.Contains(errLower, "unreachable"):
		return &ValidationError{Type: ErrTypeNetworkError, Message: "network error - check your internet connection", Err: err}

	default:
		return &ValidationError{Type: ErrTypeUnknown, Message: "model request failed", Err: err}
	}
}

func classifyAPIError(apiErr *genai.APIError, err error) *ValidationError {
	switch apiErr.Code {
	case 400:
		return &ValidationError{Type: ErrTypeInvalidKey, Message: "bad request - API key may be malformed", Err: err}
	case 401, 403:
		return &ValidationError{Type: ErrTypeInvalidKey, Message: "API key is invalid, expired, or lacks permissions", Err: err}
	case 429:
		return &ValidationError{Type: ErrTypeQuotaExceeded, Message: "API rate limit exceeded - try again later", Err: err}
	case 500, 502, 503, 504:
		return &ValidationError{Type: ErrTypeNetworkError, Message: "Gemini API server error - try again later", Err: err}
	default:
		return &ValidationError{Type: ErrTypeUnknown, Message: apiErr.Message, Err: err}
	}
}
