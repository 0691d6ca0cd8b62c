package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/genai"
)

const insightsCacheName = "insights"

// NoTransactionsInsight is returned for an empty ledger without calling the model.
const NoTransactionsInsight = "No transactions recorded yet."

// InsightsConfig configures Insights.
type InsightsConfig struct {
	APIKey   string
	Model    string
	Currency string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Insights asks Gemini for a short written summary of the spending habit.
// Answers are cached until the ledger changes or the TTL passes.
type Insights struct {
	generate generateFunc
	model    string
	currency string
	timeout  time.Duration
	ttl      time.Duration
	cache    *ristretto.Cache
	metrics  Metrics
	log      zerolog.Logger
}

// NewInsights creates a Gemini API client for cfg.APIKey.
func NewInsights(ctx context.Context, cfg InsightsConfig, metrics Metrics, log zerolog.Logger) (*Insights, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("NewInsights: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewInsights: create genai client: %w", err)
	}
	return newInsights(client.Models.GenerateContent, cfg, metrics, log)
}

func newInsights(generate generateFunc, cfg InsightsConfig, metrics Metrics, log zerolog.Logger) (*Insights, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("NewInsights: create cache: %w", err)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModelName
	}
	if cfg.Currency == "" {
		cfg.Currency = "RM"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultExtractTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultInsightsTTL
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Insights{
		generate: generate,
		model:    cfg.Model,
		currency: cfg.Currency,
		timeout:  cfg.Timeout,
		ttl:      cfg.CacheTTL,
		cache:    cache,
		metrics:  metrics,
		log:      log,
	}, nil
}

// Summarize returns the written summary for txs.
func (i *Insights) Summarize(ctx context.Context, txs []domain.Transaction) (string, error) {
	if len(txs) == 0 {
		return NoTransactionsInsight, nil
	}

	key := insightsKey(txs)
	if v, ok := i.cache.Get(key); ok {
		i.metrics.IncrCacheHit(insightsCacheName)
		return v.(string), nil
	}
	i.metrics.IncrCacheMiss(insightsCacheName)

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	resp, err := i.generate(ctx, i.model, []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: buildInsightsPrompt(txs)}},
		},
	}, &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: fmt.Sprintf(insightsSystemPrompt, i.currency)}},
		},
		Temperature: genai.Ptr[float32](0.4),
	})
	if err != nil {
		i.metrics.IncrExternalError("gemini")
		return "", &domain.ExternalServiceError{Service: "gemini", Err: err}
	}
	if resp.UsageMetadata != nil {
		i.metrics.RecordTokens(int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount))
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		i.metrics.IncrExternalError("gemini")
		return "", &domain.ExternalServiceError{Service: "gemini", Err: fmt.Errorf("empty response from model")}
	}

	i.cache.SetWithTTL(key, text, int64(len(text)), i.ttl)
	i.cache.Wait()
	i.log.Debug().Int("transactions", len(txs)).Msg("insights generated")
	return text, nil
}

// Close stops the cache goroutines.
func (i *Insights) Close() {
	i.cache.Close()
}

// insightsKey changes whenever a transaction is added or removed.
func insightsKey(txs []domain.Transaction) string {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	return fmt.Sprintf("%d|%s|%s", len(txs), total.String(), txs[len(txs)-1].ID)
}
