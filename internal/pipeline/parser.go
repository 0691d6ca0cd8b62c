package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/infra/resilience"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"google.golang.org/genai"
)

// generateFunc matches genai's Models.GenerateContent.
type generateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// ExtractorConfig configures GeminiExtractor.
type ExtractorConfig struct {
	APIKey     string
	Model      string
	Timeout    time.Duration
	Resilience resilience.Config
}

// ExtractorOption configures optional GeminiExtractor collaborators.
type ExtractorOption func(*GeminiExtractor)

// WithExtractorLogger sets the logger.
func WithExtractorLogger(log zerolog.Logger) ExtractorOption {
	return func(e *GeminiExtractor) { e.log = log }
}

// WithExtractorMetrics reports call results and token usage.
func WithExtractorMetrics(m Metrics) ExtractorOption {
	return func(e *GeminiExtractor) { e.metrics = m }
}

// GeminiExtractor sends receipt images to Gemini and returns the first line
// of the answer. Calls go through a bulkhead, a circuit breaker and retry
// with backoff.
type GeminiExtractor struct {
	generate generateFunc
	model    string
	timeout  time.Duration
	retry    resilience.Config
	breaker  *gobreaker.CircuitBreaker
	bulkhead *resilience.Bulkhead
	metrics  Metrics
	log      zerolog.Logger
}

// NewGeminiExtractor creates a Gemini API client for cfg.APIKey.
func NewGeminiExtractor(ctx context.Context, cfg ExtractorConfig, opts ...ExtractorOption) (*GeminiExtractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("NewGeminiExtractor: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiExtractor: create genai client: %w", err)
	}
	return newGeminiExtractor(client.Models.GenerateContent, cfg, opts...), nil
}

func newGeminiExtractor(generate generateFunc, cfg ExtractorConfig, opts ...ExtractorOption) *GeminiExtractor {
	if cfg.Model == "" {
		cfg.Model = DefaultModelName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultExtractTimeout
	}
	e := &GeminiExtractor{
		generate: generate,
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		retry:    cfg.Resilience,
		breaker:  resilience.NewCircuitBreaker("gemini-extract"),
		bulkhead: resilience.NewBulkhead(cfg.Resilience.MaxConcurrency),
		metrics:  nopMetrics{},
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractLine implements Extractor.
func (e *GeminiExtractor) ExtractLine(ctx context.Context, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", resilience.Permanent(fmt.Errorf("ExtractLine: empty image"))
	}
	if err := e.bulkhead.Acquire(ctx); err != nil {
		return "", err
	}
	defer e.bulkhead.Release()

	start := time.Now()
	var line string
	err := resilience.RetryWithBackoff(ctx, e.retry, func() error {
		out, err := e.breaker.Execute(func() (interface{}, error) {
			return e.call(ctx, image, mimeType)
		})
		if err != nil {
			if resilience.IsCircuitOpen(err) {
				return resilience.Permanent(err)
			}
			return err
		}
		line = out.(string)
		return nil
	})
	elapsed := time.Since(start)

	if err != nil {
		result := ExtractResultError
		if resilience.IsCircuitOpen(err) {
			result = ExtractResultOpen
		}
		e.metrics.ObserveExtraction(result, elapsed)
		e.metrics.IncrExternalError("gemini")
		e.log.Error().Err(err).Str("model", e.model).Dur("elapsed", elapsed).Msg("receipt extraction failed")
		return "", &domain.ExternalServiceError{Service: "gemini", Err: err}
	}

	e.metrics.ObserveExtraction(ExtractResultOK, elapsed)
	e.log.Debug().Str("model", e.model).Str("line", line).Dur("elapsed", elapsed).Msg("receipt extracted")
	return line, nil
}

// call makes one bounded model request.
func (e *GeminiExtractor) call(ctx context.Context, image []byte, mimeType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: buildExtractionPrompt()},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     image,
					},
				},
			},
		},
	}

	resp, err := e.generate(ctx, e.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if resp == nil {
		return "", errors.New("nil response from model")
	}
	if resp.UsageMetadata != nil {
		e.metrics.RecordTokens(int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount))
	}

	line := cleanModelLine(resp.Text())
	if line == "" {
		return "", errors.New("empty response from model")
	}
	return line, nil
}

// cleanModelLine keeps the first meaningful line of a model answer. It drops
// Markdown fences and an echoed header row if the model added them.
func cleanModelLine(raw string) string {
	for _, l := range strings.Split(raw, "\n") {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "```") {
			continue
		}
		l = strings.Trim(l, "`")
		if isHeaderLine(l) {
			continue
		}
		return strings.TrimSpace(l)
	}
	return ""
}

func isHeaderLine(l string) bool {
	lower := strings.ToLower(l)
	return strings.HasPrefix(lower, "date,") && strings.Contains(lower, "amount")
}

var _ Extractor = (*GeminiExtractor)(nil)
