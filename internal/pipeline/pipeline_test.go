package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/infra/resilience"
	"github.com/dvloznov/expense-tracker/internal/jobs"
	"github.com/rs/zerolog"
)

type fetcherFunc func(ctx context.Context, uri string) ([]byte, error)

func (f fetcherFunc) Fetch(ctx context.Context, uri string) ([]byte, error) { return f(ctx, uri) }

type extractorFunc func(ctx context.Context, image []byte, mimeType string) (string, error)

func (f extractorFunc) ExtractLine(ctx context.Context, image []byte, mimeType string) (string, error) {
	return f(ctx, image, mimeType)
}

func staticFetcher(data []byte) Fetcher {
	return fetcherFunc(func(ctx context.Context, uri string) ([]byte, error) { return data, nil })
}

func staticExtractor(line string) Extractor {
	return extractorFunc(func(ctx context.Context, image []byte, mimeType string) (string, error) { return line, nil })
}

func TestReceiptPipeline_ProducesDraft(t *testing.T) {
	var gotImage []byte
	var gotMIME string
	extractor := extractorFunc(func(ctx context.Context, image []byte, mimeType string) (string, error) {
		gotImage, gotMIME = image, mimeType
		return "2024-03-15,25.90,Restaurant ABC,food", nil
	})

	p := NewReceiptPipeline(staticFetcher([]byte("jpeg-bytes")), extractor)
	state := &PipelineState{ReceiptURI: "file:///tmp/r.jpg", MIMEType: "image/jpeg"}
	if err := p.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if string(gotImage) != "jpeg-bytes" || gotMIME != "image/jpeg" {
		t.Errorf("extractor saw %q / %q", gotImage, gotMIME)
	}
	if state.Draft == nil {
		t.Fatal("expected a draft")
	}
	if state.Draft.Category != domain.CategoryFood || state.Draft.AmountString() != "25.90" {
		t.Errorf("draft = %+v", state.Draft)
	}
	if state.Draft.ID == "" {
		t.Error("draft should carry a fresh id")
	}
}

func TestReceiptPipeline_ParseErrorKeepsLine(t *testing.T) {
	p := NewReceiptPipeline(staticFetcher([]byte("x")), staticExtractor("Sorry, I cannot read this receipt"))
	state := &PipelineState{ReceiptURI: "file:///tmp/r.jpg"}

	err := p.Execute(context.Background(), state)

	var perr *domain.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want ParseError", err)
	}
	if !resilience.IsPermanent(err) {
		t.Error("parse errors should be permanent")
	}
	if state.Line != "Sorry, I cannot read this receipt" || state.Draft != nil {
		t.Errorf("state = %+v", state)
	}
}

func TestReceiptPipeline_FetchErrorStops(t *testing.T) {
	extracted := false
	fetcher := fetcherFunc(func(ctx context.Context, uri string) ([]byte, error) {
		return nil, errors.New("object not found")
	})
	extractor := extractorFunc(func(ctx context.Context, image []byte, mimeType string) (string, error) {
		extracted = true
		return "", nil
	})

	err := NewReceiptPipeline(fetcher, extractor).Execute(context.Background(), &PipelineState{})
	if err == nil || resilience.IsPermanent(err) {
		t.Errorf("error = %v, want transient error", err)
	}
	if extracted {
		t.Error("extractor should not run after a failed fetch")
	}
}

func TestExtractJobHandler(t *testing.T) {
	var gotMIME string
	extractor := extractorFunc(func(ctx context.Context, image []byte, mimeType string) (string, error) {
		gotMIME = mimeType
		return `2024-03-16,8.50,"Kopi, Tiam",Food`, nil
	})
	handler := NewExtractJobHandler(NewReceiptPipeline(staticFetcher([]byte("x")), extractor), zerolog.Nop())

	job := &jobs.ExtractReceiptJob{JobID: "j1", ReceiptURI: "gs://bucket/receipts/a.png"}
	if err := handler(context.Background(), job); err != nil {
		t.Fatalf("handler: %v", err)
	}

	if gotMIME != "image/png" {
		t.Errorf("mime = %q, want image/png from the URI", gotMIME)
	}
	if job.Draft == nil || job.Draft.BusinessName != "Kopi, Tiam" {
		t.Errorf("draft = %+v", job.Draft)
	}
	if job.Line == "" {
		t.Error("job should keep the raw line")
	}
}

func TestExtractJobHandler_ParseFailureIsPermanent(t *testing.T) {
	handler := NewExtractJobHandler(NewReceiptPipeline(staticFetcher([]byte("x")), staticExtractor("2024-03-16,8.50")), zerolog.Nop())

	job := &jobs.ExtractReceiptJob{JobID: "j2", ReceiptURI: "file:///tmp/b.jpg", MIMEType: "image/jpeg"}
	err := handler(context.Background(), job)
	if !resilience.IsPermanent(err) {
		t.Errorf("error = %v, want permanent", err)
	}
	if job.Line != "2024-03-16,8.50" || job.Draft != nil {
		t.Errorf("job = %+v", job)
	}
}
