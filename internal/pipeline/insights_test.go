package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

func TestInsights_CachesUntilLedgerChanges(t *testing.T) {
	metrics := newRecordingMetrics()
	calls := 0
	var gotSystem, gotPrompt string

	generate := func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		calls++
		gotSystem = cfg.SystemInstruction.Parts[0].Text
		gotPrompt = contents[0].Parts[0].Text
		return textResponse("Most of your money goes to food."), nil
	}

	ins, err := newInsights(generate, InsightsConfig{Currency: "RM"}, metrics, zerolog.Nop())
	if err != nil {
		t.Fatalf("newInsights: %v", err)
	}
	defer ins.Close()

	txs := []domain.Transaction{
		mustTx(t, "2024-03-01", "20.10", "Kopitiam", "Food"),
		mustTx(t, "2024-03-02", "8.00", "Grab", "Transport"),
	}
	ctx := context.Background()

	first, err := ins.Summarize(ctx, txs)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if first != "Most of your money goes to food." {
		t.Errorf("summary = %q", first)
	}
	if !strings.Contains(gotSystem, "financial analyst") || !strings.Contains(gotSystem, "RM") {
		t.Errorf("system prompt = %q", gotSystem)
	}
	if !strings.Contains(gotPrompt, "2024-03-01,20.10,Kopitiam,Food") {
		t.Errorf("prompt = %q", gotPrompt)
	}

	if _, err := ins.Summarize(ctx, txs); err != nil {
		t.Fatalf("Summarize (cached): %v", err)
	}
	if calls != 1 || metrics.hits != 1 || metrics.misses != 1 {
		t.Errorf("calls=%d hits=%d misses=%d", calls, metrics.hits, metrics.misses)
	}

	txs = append(txs, mustTx(t, "2024-03-03", "30", "TNB", "Utilities"))
	if _, err := ins.Summarize(ctx, txs); err != nil {
		t.Fatalf("Summarize (changed): %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want a fresh call after the ledger changed", calls)
	}
}

func TestInsights_EmptyLedger(t *testing.T) {
	generate := func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		t.Fatal("model should not be called for an empty ledger")
		return nil, nil
	}
	ins, err := newInsights(generate, InsightsConfig{}, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("newInsights: %v", err)
	}
	defer ins.Close()

	got, err := ins.Summarize(context.Background(), nil)
	if err != nil || got != NoTransactionsInsight {
		t.Errorf("Summarize = %q, %v", got, err)
	}
}

func TestInsights_ModelError(t *testing.T) {
	metrics := newRecordingMetrics()
	generate := func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return nil, errors.New("quota exceeded")
	}
	ins, err := newInsights(generate, InsightsConfig{}, metrics, zerolog.Nop())
	if err != nil {
		t.Fatalf("newInsights: %v", err)
	}
	defer ins.Close()

	_, err = ins.Summarize(context.Background(), []domain.Transaction{mustTx(t, "2024-03-01", "1", "A", "Food")})
	var ext *domain.ExternalServiceError
	if !errors.As(err, &ext) {
		t.Errorf("error = %v, want ExternalServiceError", err)
	}
	if metrics.externalErrors["gemini"] != 1 {
		t.Errorf("external errors = %v", metrics.externalErrors)
	}
}
