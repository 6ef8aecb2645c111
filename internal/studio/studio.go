// Package studio is the mockup session: it gates generations to one at a
// time, tracks the visible generation state and keeps the result history.
package studio

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/aop-fashion-mockup/internal/auth"
	"github.com/fpang/aop-fashion-mockup/internal/dataurl"
	"github.com/fpang/aop-fashion-mockup/internal/fusion"
	"github.com/fpang/aop-fashion-mockup/internal/garment"
	"github.com/fpang/aop-fashion-mockup/internal/imageutil"
	"github.com/fpang/aop-fashion-mockup/internal/metrics"
	"github.com/fpang/aop-fashion-mockup/internal/prompt"
)

// Status messages shown while a generation runs.
const (
	StatusFusing   = "FUSING: Mapping the pattern onto the person's body..."
	StatusCreating = "CREATING: Generating a professional model with your pattern..."
)

// Generator runs one two-stage generation. *fusion.Orchestrator implements it.
type Generator interface {
	Generate(ctx context.Context, req fusion.Request) (*fusion.Result, error)
}

// Archiver mirrors a finished result to durable storage.
type Archiver interface {
	Archive(ctx context.Context, result MockupResult) error
}

// Input is one generation request as received from a user.
type Input struct {
	Pattern     *dataurl.Image
	Person      *dataurl.Image
	Garment     garment.Type
	Description string
}

// MockupResult is one successful generation. It is never modified after it
// enters the history.
type MockupResult struct {
	ID          string
	Garment     garment.Type
	Flat        *dataurl.Image
	Worn        *dataurl.Image
	Pattern     *dataurl.Image
	SubjectMode string
	Style       string
	CreatedAt   time.Time
}

// GenerationState is what a client shows while waiting.
type GenerationState struct {
	IsGenerating bool   `json:"isGenerating"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
}

// Studio is safe for concurrent use.
type Studio struct {
	gen          Generator
	archiver     Archiver
	maxInputDim  int
	historyLimit int
	now          func() time.Time

	mu      sync.Mutex
	state   GenerationState
	history []MockupResult // newest first
}

// Option configures a Studio.
type Option func(*Studio)

// WithArchiver mirrors every successful result through a.
func WithArchiver(a Archiver) Option {
	return func(s *Studio) {
		s.archiver = a
	}
}

// WithMaxInputDimension normalizes uploads so their longest side is at most
// maxDim before they are sent to the model. Zero disables normalization.
func WithMaxInputDimension(maxDim int) Option {
	return func(s *Studio) {
		s.maxInputDim = maxDim
	}
}

// WithHistoryLimit keeps at most n results, dropping the oldest. Zero keeps
// everything.
func WithHistoryLimit(n int) Option {
	return func(s *Studio) {
		s.historyLimit = n
	}
}

// New creates a Studio.
func New(gen Generator, opts ...Option) *Studio {
	s := &Studio{gen: gen, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate runs one generation. On success the result is prepended to the
// history and returned. Model failures, including a response without an
// image, come back as *GenerationError and leave the history untouched.
// Inputs over the decode budget return imageutil.ErrTooLarge unwrapped.
func (s *Studio) Generate(ctx context.Context, in Input) (*MockupResult, error) {
	if in.Pattern == nil || len(in.Pattern.Data) == 0 {
		return nil, ErrPatternRequired
	}
	if in.Garment == "" {
		in.Garment = garment.Default
	}
	if !in.Garment.Valid() {
		return nil, garment.ErrUnknown
	}

	subject := prompt.SubjectFor(in.Person)
	status := StatusCreating
	if _, ok := subject.(prompt.WithSubject); ok {
		status = StatusFusing
	}

	s.mu.Lock()
	if s.state.IsGenerating {
		s.mu.Unlock()
		return nil, ErrGenerationInFlight
	}
	s.state = GenerationState{IsGenerating: true, Status: status}
	s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			if s.state.IsGenerating {
				s.state = GenerationState{Error: FailureMessage}
			}
			s.mu.Unlock()
			panic(r)
		}
	}()

	start := time.Now()
	res, err := s.run(ctx, in, subject)
	elapsed := time.Since(start)

	if errors.Is(err, imageutil.ErrTooLarge) {
		s.mu.Lock()
		s.state = GenerationState{}
		s.mu.Unlock()
		return nil, err
	}
	if err == nil && !res.Complete() {
		err = ErrIncompleteMockup
	}
	if err != nil {
		s.fail(in, subject, err, elapsed)
		return nil, &GenerationError{Garment: in.Garment, Err: err}
	}

	result := MockupResult{
		ID:          uuid.New().String(),
		Garment:     in.Garment,
		Flat:        res.Flat,
		Worn:        res.Worn,
		Pattern:     in.Pattern,
		SubjectMode: subject.Mode(),
		Style:       in.Description,
		CreatedAt:   s.now(),
	}

	s.mu.Lock()
	s.history = slices.Insert(s.history, 0, result)
	if s.historyLimit > 0 && len(s.history) > s.historyLimit {
		s.history = s.history[:s.historyLimit]
	}
	s.state = GenerationState{}
	s.mu.Unlock()

	recordGeneration("success", elapsed)
	log.Info().
		Str("mockupId", result.ID).
		Str("garment", result.Garment.String()).
		Str("subject", result.SubjectMode).
		Dur("duration", elapsed).
		Msg("Mockup generated")

	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, result); err != nil {
			log.Error().Err(err).Str("mockupId", result.ID).Msg("Failed to archive mockup")
		}
	}

	return &result, nil
}

func (s *Studio) run(ctx context.Context, in Input, subject prompt.Subject) (*fusion.Result, error) {
	if s.maxInputDim > 0 {
		pattern, err := imageutil.Normalize(in.Pattern, s.maxInputDim)
		if err != nil {
			return nil, err
		}
		in.Pattern = pattern

		if ws, ok := subject.(prompt.WithSubject); ok {
			logPersonMetadata(ws.Person)
			person, err := imageutil.Normalize(ws.Person, s.maxInputDim)
			if err != nil {
				return nil, err
			}
			subject = prompt.WithSubject{Person: person}
		}
	}

	return s.gen.Generate(ctx, fusion.Request{
		Pattern: in.Pattern,
		Garment: in.Garment,
		Style:   in.Description,
		Subject: subject,
	})
}

func (s *Studio) fail(in Input, subject prompt.Subject, err error, elapsed time.Duration) {
	s.mu.Lock()
	s.state = GenerationState{Error: FailureMessage}
	s.mu.Unlock()

	outcome := "error"
	if errors.Is(err, ErrIncompleteMockup) {
		outcome = "incomplete"
	}
	recordGeneration(outcome, elapsed)

	cause := auth.Classify(err)
	log.Error().
		Err(err).
		Str("cause", cause.Type.String()).
		Str("garment", in.Garment.String()).
		Str("subject", subject.Mode()).
		Dur("duration", elapsed).
		Msg("Mockup generation failed")
}

func logPersonMetadata(person *dataurl.Image) {
	if person == nil {
		return
	}
	md := imageutil.Inspect(person.Data)
	if !md.HasEXIF {
		return
	}
	log.Debug().
		Str("cameraMake", md.CameraMake).
		Str("cameraModel", md.CameraModel).
		Bool("hasGPS", md.HasGPS).
		Msg("Person photo carries EXIF, stripping before upload")
}

func recordGeneration(result string, elapsed time.Duration) {
	metrics.New(metrics.Namespace).
		Dimension("Result", result).
		Duration(metrics.GenerationLatency, elapsed).
		Count(metrics.GenerationResult).
		Flush()
}

// State returns the current generation state.
func (s *Studio) State() GenerationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns the results, newest first.
func (s *Studio) History() []MockupResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Get returns the result with the given id.
func (s *Studio) Get(id string) (MockupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.history {
		if r.ID == id {
			return r, nil
		}
	}
	return MockupResult{}, ErrNotFound
}
