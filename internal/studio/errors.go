package studio

import (
	"errors"

	"github.com/fpang/aop-fashion-mockup/internal/garment"
)

var (
	// ErrPatternRequired is returned when Generate is called without a pattern.
	ErrPatternRequired = errors.New("pattern image is required")

	// ErrGenerationInFlight is returned while another generation is running.
	ErrGenerationInFlight = errors.New("a generation is already in progress")

	// ErrIncompleteMockup means the model answered a stage without an image.
	ErrIncompleteMockup = errors.New("model response did not include both images")

	// ErrNotFound is returned by Get for unknown ids.
	ErrNotFound = errors.New("mockup not found")
)

// FailureMessage is shown to users for every failed generation, whatever the
// underlying cause.
const FailureMessage = "The fusion failed. Try a photo of the person with clearer lighting and nothing covering the clothing."

// GenerationError is returned by Generate when the model step fails. The
// cause is kept for logs; users only ever see UserMessage.
type GenerationError struct {
	Garment garment.Type
	Err     error
}

func (e *GenerationError) Error() string {
	return "generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// UserMessage returns the fixed remediation text.
func (e *GenerationError) UserMessage() string {
	return FailureMessage
}
