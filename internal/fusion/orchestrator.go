// Package fusion runs one mockup generation against the image model: a flat
// studio shot of the printed garment, then the garment worn by a person.
package fusion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"github.com/fpang/aop-fashion-mockup/internal/dataurl"
	"github.com/fpang/aop-fashion-mockup/internal/garment"
	"github.com/fpang/aop-fashion-mockup/internal/metrics"
	"github.com/fpang/aop-fashion-mockup/internal/prompt"
)

// Output-shape hints for the two stages.
const (
	FlatAspectRatio = "1:1"
	WornAspectRatio = "3:4"
)

// ErrNoPattern is returned when a request carries no pattern image.
var ErrNoPattern = errors.New("pattern image is required")

// Request is the input of one generation.
type Request struct {
	Pattern *dataurl.Image
	Garment garment.Type
	Style   string
	// Subject selects the worn-shot mode. Nil, or WithSubject without a
	// person photo, means prompt.WithoutSubject.
	Subject prompt.Subject
}

// Result holds the extracted images. A nil image means the model answered
// without an image part for that stage.
type Result struct {
	Flat *dataurl.Image
	Worn *dataurl.Image
}

// Complete reports whether both stages produced an image.
func (r *Result) Complete() bool {
	return r != nil && r.Flat != nil && r.Worn != nil
}

// Orchestrator issues the two stage requests. It keeps no state between calls
// and is safe for concurrent use if the generator is.
type Orchestrator struct {
	gen        ContentGenerator
	model      string
	concurrent bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithModel overrides the image model ID.
func WithModel(model string) Option {
	return func(o *Orchestrator) {
		if model != "" {
			o.model = model
		}
	}
}

// WithConcurrentStages issues the flat and worn requests at the same time.
// The result is still returned only once both have finished.
func WithConcurrentStages() Option {
	return func(o *Orchestrator) {
		o.concurrent = true
	}
}

// New creates an Orchestrator over the given model capability.
func New(gen ContentGenerator, opts ...Option) *Orchestrator {
	o := &Orchestrator{gen: gen, model: GetModelName()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Model returns the model ID used for both stages.
func (o *Orchestrator) Model() string {
	return o.model
}

// Generate runs the flat stage and then the worn stage. Errors from either
// request are returned wrapped; nothing is retried.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.Pattern == nil || len(req.Pattern.Data) == 0 {
		return nil, ErrNoPattern
	}
	subject := resolveSubject(req.Subject)

	log.Info().
		Str("model", o.model).
		Str("garment", req.Garment.String()).
		Str("subject", subject.Mode()).
		Int("pattern_bytes", len(req.Pattern.Data)).
		Bool("concurrent", o.concurrent).
		Msg("Starting mockup generation")

	flatContents := FlatContents(req)
	wornContents := WornContents(req, subject)

	result := &Result{}
	if o.concurrent {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			img, err := o.runStage(gctx, "flat", flatContents, FlatAspectRatio)
			result.Flat = img
			return err
		})
		g.Go(func() error {
			img, err := o.runStage(gctx, "worn", wornContents, WornAspectRatio)
			result.Worn = img
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return result, nil
	}

	flat, err := o.runStage(ctx, "flat", flatContents, FlatAspectRatio)
	if err != nil {
		return nil, err
	}
	result.Flat = flat

	worn, err := o.runStage(ctx, "worn", wornContents, WornAspectRatio)
	if err != nil {
		return nil, err
	}
	result.Worn = worn

	return result, nil
}

func (o *Orchestrator) runStage(ctx context.Context, stage string, contents []*genai.Content, aspectRatio string) (*dataurl.Image, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
		ImageConfig:        &genai.ImageConfig{AspectRatio: aspectRatio},
	}

	start := time.Now()
	resp, err := o.gen.GenerateContent(ctx, o.model, contents, config)
	elapsed := time.Since(start)

	outcome := "image"
	var img *dataurl.Image
	if err != nil {
		outcome = "error"
	} else if img = ExtractImage(resp); img == nil {
		outcome = "no_image"
	}

	metrics.New(metrics.Namespace).
		Dimension("Stage", stage).
		Dimension("Outcome", outcome).
		Duration(metrics.StageLatency, elapsed).
		Count(metrics.StageCount).
		Flush()

	if err != nil {
		log.Error().Err(err).Str("stage", stage).Dur("duration", elapsed).Msg("Image model request failed")
		return nil, fmt.Errorf("%s shot request: %w", stage, err)
	}

	if img == nil {
		log.Warn().
			Str("stage", stage).
			Str("text", truncateString(responseText(resp), 200)).
			Dur("duration", elapsed).
			Msg("Image model returned no image part")
		return nil, nil
	}

	log.Info().
		Str("stage", stage).
		Int("output_bytes", len(img.Data)).
		Str("output_mime", img.MIMEType).
		Dur("duration", elapsed).
		Msg("Stage image received")
	return img, nil
}

// FlatContents builds the flat-stage payload: the pattern, then the instruction.
func FlatContents(req Request) []*genai.Content {
	return []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			imagePart(req.Pattern),
			{Text: prompt.FlatShot(req.Garment)},
		},
	}}
}

// WornContents builds the worn-stage payload: the pattern, the person photo
// when the subject is WithSubject, then the instruction. A WithSubject
// without a photo is sent as WithoutSubject.
func WornContents(req Request, subject prompt.Subject) []*genai.Content {
	subject = resolveSubject(subject)
	parts := []*genai.Part{imagePart(req.Pattern)}
	if s, ok := subject.(prompt.WithSubject); ok {
		parts = append(parts, imagePart(s.Person))
	}
	parts = append(parts, &genai.Part{Text: prompt.WornShot(req.Garment, req.Style, subject)})
	return []*genai.Content{{Role: "user", Parts: parts}}
}

// resolveSubject maps nil, and WithSubject without a person photo, to
// WithoutSubject so the parts and the instruction text always agree.
func resolveSubject(subject prompt.Subject) prompt.Subject {
	if s, ok := subject.(prompt.WithSubject); ok && s.Person != nil {
		return s
	}
	return prompt.WithoutSubject{}
}

func imagePart(img *dataurl.Image) *genai.Part {
	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = dataurl.DefaultMIMEType
	}
	return &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: img.Data}}
}

// ExtractImage returns the first inline image of the first candidate, or nil.
func ExtractImage(resp *genai.GenerateContentResponse) *dataurl.Image {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	c := resp.Candidates[0]
	if c == nil || c.Content == nil {
		return nil
	}
	for _, part := range c.Content.Parts {
		// Empty inline payloads are skipped and the scan continues.
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return dataurl.New(part.InlineData.MIMEType, part.InlineData.Data)
		}
	}
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}
	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			text += part.Text
		}
	}
	return text
}
