// Package pipeline turns receipts into draft transactions and records
// confirmed transactions: ledger append, threshold alert and mirror fan-out.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/jobs"
	"github.com/dvloznov/expense-tracker/internal/receipts"
	"github.com/rs/zerolog"
)

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewReceiptPipeline creates the fetch, extract and parse pipeline.
func NewReceiptPipeline(fetcher Fetcher, extractor Extractor) *Pipeline {
	return NewPipeline(
		&FetchReceiptStep{Fetcher: fetcher},
		&ExtractLineStep{Extractor: extractor},
		&ParseDraftStep{},
	)
}

// NewExtractJobHandler runs the receipt pipeline for queued jobs and copies
// the line and draft back onto the job.
func NewExtractJobHandler(p *Pipeline, log zerolog.Logger) jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		j, ok := job.(*jobs.ExtractReceiptJob)
		if !ok {
			return fmt.Errorf("unsupported job type %s", job.GetType())
		}

		mimeType := j.MIMEType
		if mimeType == "" {
			mimeType = receipts.MIMETypeFor(receipts.FilenameFromURI(j.ReceiptURI), nil)
		}

		state := &PipelineState{ReceiptURI: j.ReceiptURI, MIMEType: mimeType}
		err := p.Execute(ctx, state)
		j.Line = state.Line
		if state.Draft != nil {
			j.Draft = state.Draft
		}

		var perr *domain.ParseError
		if errors.As(err, &perr) {
			log.Warn().Err(err).Str("job_id", j.JobID).Str("line", state.Line).Msg("model answer could not be parsed")
		}
		return err
	}
}
