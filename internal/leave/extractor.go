package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/omriShneor/leave_extractor/internal/timeutil"
	"github.com/sirupsen/logrus"
)

// Model is a text-completion collaborator: prompt in, raw text out.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Extractor turns a free-text leave message into structured events by
// rendering the prompt, calling the model, and parsing and validating its answer.
type Extractor struct {
	model    Model
	prompt   *Prompt
	clock    timeutil.Clock
	location *time.Location
}

// ExtractorConfig holds the collaborators of an Extractor.
type ExtractorConfig struct {
	Model    Model
	Prompt   *Prompt
	Clock    timeutil.Clock
	Location *time.Location
}

func NewExtractor(cfg ExtractorConfig) *Extractor {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Extractor{
		model:    cfg.Model,
		prompt:   cfg.Prompt,
		clock:    clock,
		location: loc,
	}
}

// Today returns the reference date the extractor uses when none is supplied.
func (e *Extractor) Today() string {
	return timeutil.Today(e.clock, e.location)
}

// Extract resolves the message against today's date.
func (e *Extractor) Extract(ctx context.Context, text string) (*Extraction, error) {
	return e.ExtractAt(ctx, text, e.Today())
}

// ExtractAt resolves the message against an explicit reference date.
func (e *Extractor) ExtractAt(ctx context.Context, text, today string) (*Extraction, error) {
	prompt, err := e.prompt.Render(text, today)
	if err != nil {
		return nil, err
	}

	log := logrus.WithField("reference_date", today)
	start := time.Now()

	output, err := e.model.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}
	log.WithField("duration_ms", time.Since(start).Milliseconds()).Debugf("model output: %s", output)

	raw, err := ParseOutput(output)
	if err != nil {
		log.WithError(err).Warn("could not locate JSON in model output")
		return nil, err
	}

	extraction, err := Validate(raw)
	if err != nil {
		log.WithError(err).Warn("model output rejected")
		return nil, err
	}

	log.WithField("events", len(extraction.Events)).Info("leave message extracted")
	return extraction, nil
}
