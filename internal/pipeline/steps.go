package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/infra/resilience"
)

// PipelineStep represents a single step in the receipt pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	ReceiptURI string
	MIMEType   string
	Image      []byte
	Line       string
	Draft      *domain.Transaction
}

// Step 1: FetchReceiptStep loads the stored image.
type FetchReceiptStep struct {
	Fetcher Fetcher
}

func (s *FetchReceiptStep) Execute(ctx context.Context, state *PipelineState) error {
	image, err := s.Fetcher.Fetch(ctx, state.ReceiptURI)
	if err != nil {
		return fmt.Errorf("fetch receipt: %w", err)
	}
	state.Image = image
	return nil
}

// Step 2: ExtractLineStep asks the model for the one-line CSV.
type ExtractLineStep struct {
	Extractor Extractor
}

func (s *ExtractLineStep) Execute(ctx context.Context, state *PipelineState) error {
	line, err := s.Extractor.ExtractLine(ctx, state.Image, state.MIMEType)
	if err != nil {
		return err
	}
	state.Line = line
	return nil
}

// Step 3: ParseDraftStep turns the line into an unsaved transaction.
// A line the model got wrong will not improve on retry, so parse errors are permanent.
type ParseDraftStep struct{}

func (s *ParseDraftStep) Execute(ctx context.Context, state *PipelineState) error {
	tx, err := domain.FromLine(state.Line)
	if err != nil {
		return resilience.Permanent(err)
	}
	state.Draft = &tx
	return nil
}
